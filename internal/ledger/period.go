package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PeriodKey is a fixed-width sortable encoding of a calendar year and a
// period number, e.g. "2025005" for period 5 of 2025. Lexicographic
// comparison of two keys matches numeric ordering, including across
// year boundaries ("2024012" < "2025001").
type PeriodKey string

// Period numbers outside the twelve months carry special meaning.
const (
	PeriodOpening       = 0
	PeriodYearEndAdjust = 100
)

var (
	// ErrPeriodMissing indicates a line without an assigned accounting period.
	ErrPeriodMissing = errors.New("ledger: period tag missing")
	// ErrPeriodInvalid indicates a period tag outside the valid set.
	ErrPeriodInvalid = errors.New("ledger: period tag invalid")
	// ErrWindowInverted indicates a reporting window whose start follows its end.
	ErrWindowInverted = errors.New("ledger: window start after end")
)

// NewPeriodKey builds a key from a calendar year and a period number.
// Valid period numbers are 0 (opening), 1..12 and 100 (year-end
// adjustment); anything else is rejected, never defaulted.
func NewPeriodKey(year, period int) (PeriodKey, error) {
	if year < 1900 || year > 9999 {
		return "", fmt.Errorf("%w: year %d", ErrPeriodInvalid, year)
	}
	if !validPeriodNumber(period) {
		return "", fmt.Errorf("%w: period number %d", ErrPeriodInvalid, period)
	}
	return PeriodKey(fmt.Sprintf("%04d%03d", year, period)), nil
}

// ParsePeriodKey resolves a raw period tag into a key. It accepts the
// canonical seven-digit form ("2025005") and the labelled form used by
// the source system ("2025/005").
func ParsePeriodKey(tag string) (PeriodKey, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", ErrPeriodMissing
	}
	var yearPart, periodPart string
	if idx := strings.IndexByte(tag, '/'); idx >= 0 {
		yearPart, periodPart = tag[:idx], tag[idx+1:]
	} else if len(tag) == 7 {
		yearPart, periodPart = tag[:4], tag[4:]
	} else {
		return "", fmt.Errorf("%w: %q", ErrPeriodInvalid, tag)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrPeriodInvalid, tag)
	}
	period, err := strconv.Atoi(periodPart)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrPeriodInvalid, tag)
	}
	return NewPeriodKey(year, period)
}

func validPeriodNumber(n int) bool {
	return n == PeriodOpening || (n >= 1 && n <= 12) || n == PeriodYearEndAdjust
}

// Year reports the calendar year encoded in the key.
func (k PeriodKey) Year() int {
	if len(k) != 7 {
		return 0
	}
	year, _ := strconv.Atoi(string(k[:4]))
	return year
}

// Number reports the period number encoded in the key.
func (k PeriodKey) Number() int {
	if len(k) != 7 {
		return 0
	}
	n, _ := strconv.Atoi(string(k[4:]))
	return n
}

// Label renders the upstream "YYYY/PPP" form.
func (k PeriodKey) Label() string {
	if len(k) != 7 {
		return string(k)
	}
	return string(k[:4]) + "/" + string(k[4:])
}

// PeriodWindow bounds one reporting run. Start and End are the first
// and last period keys of the requested range, both inclusive for the
// closing balance. The window is an explicit immutable value built once
// per run and handed to the accumulator.
type PeriodWindow struct {
	Start PeriodKey
	End   PeriodKey
}

// NewPeriodWindow builds a window from calendar year and period pairs.
// An inverted range is a caller error and fails before any accumulation.
func NewPeriodWindow(startYear, startPeriod, endYear, endPeriod int) (PeriodWindow, error) {
	start, err := NewPeriodKey(startYear, startPeriod)
	if err != nil {
		return PeriodWindow{}, err
	}
	end, err := NewPeriodKey(endYear, endPeriod)
	if err != nil {
		return PeriodWindow{}, err
	}
	return WindowFromKeys(start, end)
}

// WindowFromKeys builds a window from two already resolved keys.
func WindowFromKeys(start, end PeriodKey) (PeriodWindow, error) {
	if start > end {
		return PeriodWindow{}, fmt.Errorf("%w: %s > %s", ErrWindowInverted, start, end)
	}
	return PeriodWindow{Start: start, End: end}, nil
}

// InOpening reports whether a period feeds the opening balance. The
// window start itself is excluded: opening covers strictly earlier
// periods.
func (w PeriodWindow) InOpening(k PeriodKey) bool {
	return k < w.Start
}

// InClosing reports whether a period feeds the closing balance, which
// covers everything through the window end.
func (w PeriodWindow) InClosing(k PeriodKey) bool {
	return k <= w.End
}
