package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyDivideEven(t *testing.T) {
	cases := []struct {
		cents int64
		n     int64
		want  int64
	}{
		{120000, 12, 10000}, // 1200.00 over 12 -> 100.00
		{100000, 3, 33333},  // remainder tolerated
		{99, 2, 50},         // half-up
		{100, 0, 0},
	}
	for i, tc := range cases {
		got := (Money{Cents: tc.cents}).DivideEven(tc.n)
		if got.Cents != tc.want {
			t.Fatalf("case %d: %d/%d = %d, want %d", i, tc.cents, tc.n, got.Cents, tc.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Cents: 123456}).String(); got != "1234.56" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: -5}).String(); got != "-0.05" {
		t.Fatalf("got %q", got)
	}
}
