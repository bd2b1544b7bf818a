package stream

import (
	"testing"
	"time"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Change{AccountID: 7, Kind: "entry_created"})

	select {
	case got := <-ch:
		if got.AccountID != 7 || got.Kind != "entry_created" {
			t.Fatalf("got %+v", got)
		}
		if got.At.IsZero() {
			t.Fatalf("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// Publishing after cancel must not panic.
	b.Publish(Change{AccountID: 1, Kind: "transfer"})
}

func TestBrokerDropsWhenSubscriberLags(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	// Fill well past the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Change{AccountID: int64(i), Kind: "entry_created"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a lagging subscriber")
	}
}

func TestBrokerCloseClosesSubscribers(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("subscriber channel should close with the broker")
	}
	// Subscribing after close yields a closed channel.
	ch2, cancel := b.Subscribe()
	defer cancel()
	if _, ok := <-ch2; ok {
		t.Fatalf("post-close subscription should be closed")
	}
}
