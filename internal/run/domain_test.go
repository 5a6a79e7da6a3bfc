package run

import (
	"errors"
	"testing"

	"github.com/saftbridge/saftbridge/internal/ledger"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusSucceeded, false},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusSucceeded, StatusRunning, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRunWindow(t *testing.T) {
	rec := Run{WindowStart: "2025001", WindowEnd: "2025003"}
	w, err := rec.Window()
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.Start != "2025001" || w.End != "2025003" {
		t.Fatalf("window = %+v", w)
	}

	rec = Run{WindowStart: "2025006", WindowEnd: "2025001"}
	if _, err := rec.Window(); !errors.Is(err, ledger.ErrWindowInverted) {
		t.Fatalf("inverted window error = %v", err)
	}
}
