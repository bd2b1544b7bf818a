package core

import "sort"

// Recompute derives an account balance by folding its full entry history.
//
// The balance is never maintained incrementally: create, edit and delete of an
// entry are all handled by replaying the surviving set through this single
// function, so there is no reversal bookkeeping to get wrong and repeated
// invocations over the same set are idempotent.
//
// Entries are folded in ascending date order, same-date ties broken by the
// insertion sequence number so replay is deterministic.
func Recompute(kind AccountKind, entries []LedgerEntry) Money {
	ordered := make([]LedgerEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Date.Equal(ordered[j].Date.Time) {
			return ordered[i].Seq < ordered[j].Seq
		}
		return ordered[i].Date.Before(ordered[j].Date.Time)
	})

	var balance int64
	for _, e := range ordered {
		balance += transition(kind, e)
	}
	return Money{Cents: balance}
}

// RecomputeAccount replays an account's entire history, entries and transfers
// together, in date order. Transfers out of an asset account subtract; out of
// a debt account they add to the amount owed. Transfers into an asset account
// add; into a debt account they pay the balance down, clamped at zero.
//
// The clamp makes the fold order-sensitive, so transfers are merged with
// entries into one deterministic sequence (date, then entries before
// transfers, then insertion order).
func RecomputeAccount(a Account, entries []LedgerEntry, transfers []Transfer) Money {
	type event struct {
		date    Date
		rank    int // entries fold before transfers on the same date
		seq     int64
		delta   int64
		payDown int64 // debt pay-down amount, applied with the zero clamp
	}

	events := make([]event, 0, len(entries)+len(transfers))
	for _, e := range entries {
		events = append(events, event{date: e.Date, rank: 0, seq: e.Seq, delta: transition(a.Kind, e)})
	}
	isAsset := a.Kind == AssetAccount
	for _, t := range transfers {
		switch a.ID {
		case t.FromAccountID:
			d := t.Amount.Cents
			if isAsset {
				d = -d
			}
			events = append(events, event{date: t.Date, rank: 1, seq: t.ID, delta: d})
		case t.ToAccountID:
			if isAsset {
				events = append(events, event{date: t.Date, rank: 1, seq: t.ID, delta: t.Amount.Cents})
			} else {
				events = append(events, event{date: t.Date, rank: 1, seq: t.ID, payDown: t.Amount.Cents})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].date.Equal(events[j].date.Time) {
			return events[i].date.Before(events[j].date.Time)
		}
		if events[i].rank != events[j].rank {
			return events[i].rank < events[j].rank
		}
		return events[i].seq < events[j].seq
	})

	var balance int64
	for _, ev := range events {
		if ev.payDown > 0 {
			balance -= ev.payDown
			if balance < 0 {
				balance = 0
			}
			continue
		}
		balance += ev.delta
	}
	return Money{Cents: balance}
}

// transition returns the signed cents delta a single entry applies for the
// given account kind.
func transition(kind AccountKind, e LedgerEntry) int64 {
	switch kind {
	case AssetAccount:
		// Real money: income adds, expense subtracts, no floor (overdraft).
		if e.Kind == Income {
			return e.Amount.Cents
		}
		return -e.Amount.Cents
	case RevolvingCredit:
		// Balance is amount owed. Spending raises it; income entries never
		// target this kind and are not applied.
		if e.Kind == Expense {
			return e.Amount.Cents
		}
		return 0
	case InstallmentDebt:
		// Expenses grow the outstanding debt. Payoff happens through the
		// account's own monthly-payment bookkeeping, not through entries.
		if e.Kind == Expense {
			return e.Amount.Cents
		}
		return 0
	}
	return 0
}
