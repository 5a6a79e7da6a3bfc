package ledger

import (
	"errors"
	"testing"
)

func TestPeriodKeyOrderingAcrossYears(t *testing.T) {
	december, err := NewPeriodKey(2024, 12)
	if err != nil {
		t.Fatalf("build 2024/012: %v", err)
	}
	january, err := NewPeriodKey(2025, 1)
	if err != nil {
		t.Fatalf("build 2025/001: %v", err)
	}
	if !(december < january) {
		t.Fatalf("expected %s to sort before %s", december, january)
	}
	if december.Label() != "2024/012" {
		t.Fatalf("unexpected label: %s", december.Label())
	}
	if january.Year() != 2025 || january.Number() != 1 {
		t.Fatalf("unexpected decode: year=%d number=%d", january.Year(), january.Number())
	}
}

func TestNewPeriodKeyValidSet(t *testing.T) {
	cases := []struct {
		period int
		ok     bool
	}{
		{0, true},
		{1, true},
		{12, true},
		{100, true},
		{13, false},
		{99, false},
		{-1, false},
		{101, false},
	}
	for _, tc := range cases {
		_, err := NewPeriodKey(2025, tc.period)
		if tc.ok && err != nil {
			t.Fatalf("period %d: unexpected error %v", tc.period, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrPeriodInvalid) {
				t.Fatalf("period %d: expected ErrPeriodInvalid, got %v", tc.period, err)
			}
		}
	}
}

func TestParsePeriodKeyForms(t *testing.T) {
	for _, tag := range []string{"2025005", "2025/005", " 2025/005 "} {
		key, err := ParsePeriodKey(tag)
		if err != nil {
			t.Fatalf("parse %q: %v", tag, err)
		}
		if key != PeriodKey("2025005") {
			t.Fatalf("parse %q: got %s", tag, key)
		}
	}

	if _, err := ParsePeriodKey(""); !errors.Is(err, ErrPeriodMissing) {
		t.Fatalf("expected ErrPeriodMissing, got %v", err)
	}
	for _, tag := range []string{"2025013", "2025/013", "garbage", "25005", "2025/x"} {
		if _, err := ParsePeriodKey(tag); !errors.Is(err, ErrPeriodInvalid) {
			t.Fatalf("parse %q: expected ErrPeriodInvalid, got %v", tag, err)
		}
	}
}

func TestNewPeriodWindowInverted(t *testing.T) {
	if _, err := NewPeriodWindow(2025, 3, 2025, 1); !errors.Is(err, ErrWindowInverted) {
		t.Fatalf("expected ErrWindowInverted, got %v", err)
	}
	if _, err := NewPeriodWindow(2025, 1, 2025, 1); err != nil {
		t.Fatalf("single-period window: %v", err)
	}
}

func TestWindowBoundaryMembership(t *testing.T) {
	window, err := NewPeriodWindow(2025, 1, 2025, 3)
	if err != nil {
		t.Fatalf("build window: %v", err)
	}

	start := PeriodKey("2025001")
	if window.InOpening(start) {
		t.Fatalf("window start must be excluded from the opening sum")
	}
	if !window.InClosing(start) {
		t.Fatalf("window start must be included in the closing sum")
	}

	before := PeriodKey("2024012")
	if !window.InOpening(before) || !window.InClosing(before) {
		t.Fatalf("prior period must feed both opening and closing")
	}

	end := PeriodKey("2025003")
	if window.InOpening(end) || !window.InClosing(end) {
		t.Fatalf("window end must feed closing only")
	}

	after := PeriodKey("2025004")
	if window.InOpening(after) || window.InClosing(after) {
		t.Fatalf("period after the window must feed neither sum")
	}
}
