package session

import (
	"errors"
	"testing"

	"storebot/internal/gateway"
)

func TestModeIsExclusive(t *testing.T) {
	s := NewStore()
	s.BeginOrder(7)
	if got := s.ModeOf(7); got != ModeOrdering {
		t.Fatalf("mode = %v, want ordering", got)
	}

	s.AwaitForward(7)
	if got := s.ModeOf(7); got != ModeAwaitingForward {
		t.Fatalf("mode = %v, want awaiting", got)
	}
	if _, ok := s.DraftOf(7); ok {
		t.Error("draft survived switch to awaiting-forward mode")
	}

	s.BeginOrder(7)
	if got := s.ModeOf(7); got != ModeOrdering {
		t.Fatalf("mode = %v, want ordering", got)
	}
}

func TestBeginOrderDiscardsPriorDraft(t *testing.T) {
	s := NewStore()
	s.BeginOrder(1)
	s.UpdateDraft(1, func(d *Draft) {
		d.Product = "A"
		d.Quantity = "2"
		d.Quality = true
		d.Price = 2200
		d.Step = StepConfirm
	})

	fresh := s.BeginOrder(1)
	if fresh.Product != "" || fresh.Quantity != "" || fresh.Quality || fresh.Price != 0 {
		t.Errorf("restart kept residual fields: %+v", fresh)
	}
	if fresh.Step != StepProduct {
		t.Errorf("restart step = %v, want StepProduct", fresh.Step)
	}
}

func TestUpdateDraftRequiresOrdering(t *testing.T) {
	s := NewStore()
	if s.UpdateDraft(5, func(*Draft) {}) {
		t.Error("UpdateDraft succeeded with no draft")
	}
	s.AwaitForward(5)
	if s.UpdateDraft(5, func(*Draft) {}) {
		t.Error("UpdateDraft succeeded in awaiting-forward mode")
	}
}

func TestFinalizeOverwritesLastOrder(t *testing.T) {
	s := NewStore()
	s.BeginOrder(2)
	s.Finalize(2, Order{UserID: 2, Product: "A", Price: 1000})
	s.BeginOrder(2)
	s.Finalize(2, Order{UserID: 2, Product: "B", Price: 2200})

	order, ok := s.LastOrder(2)
	if !ok {
		t.Fatal("no last order")
	}
	if order.Product != "B" || order.Price != 2200 {
		t.Errorf("last order = %+v, want latest only", order)
	}
	if got := s.ModeOf(2); got != ModeIdle {
		t.Errorf("mode after finalize = %v, want idle", got)
	}
}

func TestResolve(t *testing.T) {
	s := NewStore()
	s.Touch(12345, "alice")

	cases := []struct {
		target string
		want   int64
	}{
		{"alice", 12345},
		{"@alice", 12345},
		{"ALICE", 12345},
		{"12345", 12345},
		{"999", 999}, // numeric IDs resolve without being seen
	}
	for _, tc := range cases {
		got, err := s.Resolve(tc.target)
		if err != nil {
			t.Errorf("resolve(%q): %v", tc.target, err)
			continue
		}
		if got != tc.want {
			t.Errorf("resolve(%q) = %d, want %d", tc.target, got, tc.want)
		}
	}

	for _, target := range []string{"bob", "@bob", ""} {
		if _, err := s.Resolve(target); !errors.Is(err, ErrUnknownRecipient) {
			t.Errorf("resolve(%q) err = %v, want ErrUnknownRecipient", target, err)
		}
	}
}

func TestResolveAfterHandleChange(t *testing.T) {
	s := NewStore()
	s.Touch(42, "before")
	s.Touch(42, "after")

	if _, err := s.Resolve("before"); !errors.Is(err, ErrUnknownRecipient) {
		t.Errorf("stale handle still resolves: %v", err)
	}
	if id, err := s.Resolve("after"); err != nil || id != 42 {
		t.Errorf("resolve(after) = %d, %v", id, err)
	}
}

func TestUnansweredSet(t *testing.T) {
	s := NewStore()
	s.Touch(3, "carol")
	s.SetUnanswered(3, true)
	s.SetUnanswered(9, true)
	s.SetUnanswered(9, false)

	got := s.Unanswered()
	if len(got) != 1 {
		t.Fatalf("unanswered = %v, want one entry", got)
	}
	if got[0].UserID != 3 || got[0].Username != "carol" {
		t.Errorf("unanswered[0] = %+v", got[0])
	}
	if got[0].Label() != "@carol" {
		t.Errorf("label = %q", got[0].Label())
	}
}

func TestBanDiscardsActiveFlow(t *testing.T) {
	s := NewStore()
	s.BeginOrder(4)
	s.SetBanned(4, true)

	if !s.IsBanned(4) {
		t.Fatal("user not banned")
	}
	if got := s.ModeOf(4); got != ModeIdle {
		t.Errorf("mode after ban = %v, want idle", got)
	}
	s.SetBanned(4, false)
	if s.IsBanned(4) {
		t.Error("user still banned after unban")
	}
}

func TestTrackedRefs(t *testing.T) {
	s := NewStore()
	s.Track(6, gateway.Ref{ChatID: 6, MessageID: 10})
	s.Track(6, gateway.Ref{ChatID: 6, MessageID: 11})
	s.Track(6, gateway.Ref{}) // zero refs are ignored

	refs := s.TakeTracked(6)
	if len(refs) != 2 {
		t.Fatalf("tracked = %v, want 2 refs", refs)
	}
	if again := s.TakeTracked(6); len(again) != 0 {
		t.Errorf("TakeTracked not cleared: %v", again)
	}
}

func TestSwapPhoto(t *testing.T) {
	s := NewStore()
	if _, had := s.SwapPhoto(8, gateway.Ref{ChatID: 8, MessageID: 1}); had {
		t.Error("unexpected previous photo")
	}
	prev, had := s.SwapPhoto(8, gateway.Ref{ChatID: 8, MessageID: 2})
	if !had || prev.MessageID != 1 {
		t.Errorf("prev = %+v, had = %v", prev, had)
	}
}
