package ledger

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Dimension names one grouping axis of the consolidation pass.
type Dimension string

const (
	// DimensionGLAccount groups lines by chart-of-accounts entity.
	DimensionGLAccount Dimension = "gl_account"
	// DimensionPartner groups lines by business-partner sub-ledger entity.
	DimensionPartner Dimension = "business_partner"
)

// RawBalance carries the four running sums accumulated for one grouping
// key. All fields stay non-negative; the sign of a posting decides
// which side receives its magnitude. Scratch state owned by the
// accumulator until normalization.
type RawBalance struct {
	OpeningDebit  decimal.Decimal
	OpeningCredit decimal.Decimal
	ClosingDebit  decimal.Decimal
	ClosingCredit decimal.Decimal
}

func (b *RawBalance) accumulate(net decimal.Decimal, opening, closing bool) {
	if net.IsZero() {
		return
	}
	debitSide := net.IsPositive()
	magnitude := net.Abs()
	if opening {
		if debitSide {
			b.OpeningDebit = b.OpeningDebit.Add(magnitude)
		} else {
			b.OpeningCredit = b.OpeningCredit.Add(magnitude)
		}
	}
	if closing {
		if debitSide {
			b.ClosingDebit = b.ClosingDebit.Add(magnitude)
		} else {
			b.ClosingCredit = b.ClosingCredit.Add(magnitude)
		}
	}
}

// GroupingSpec describes one grouping axis fed during the single pass.
// Key extracts the grouping key from a line, empty meaning the line
// does not belong to this axis. Match, when set, restricts the axis to
// a subset of lines and is evaluated before any value extraction.
type GroupingSpec struct {
	Dimension Dimension
	Key       func(LedgerLine) string
	Match     func(LedgerLine) bool
}

// GLAccountSpec groups by the general-ledger account reference.
func GLAccountSpec() GroupingSpec {
	return GroupingSpec{
		Dimension: DimensionGLAccount,
		Key:       func(line LedgerLine) string { return line.GLAccountID },
	}
}

// PartnerSpec groups by the business-partner reference.
func PartnerSpec() GroupingSpec {
	return GroupingSpec{
		Dimension: DimensionPartner,
		Key:       func(line LedgerLine) string { return line.PartnerID },
	}
}

// ClassFilterSpec groups by the business-partner reference restricted
// to lines posted against general-ledger accounts whose code starts
// with the given prefix. Sub-ledger balances derived this way stay
// confined to one chart-of-accounts family instead of the partner's
// entire posting history.
func ClassFilterSpec(dimension Dimension, codeByAccount map[string]string, prefix string) GroupingSpec {
	return GroupingSpec{
		Dimension: dimension,
		Key:       func(line LedgerLine) string { return line.PartnerID },
		Match: func(line LedgerLine) bool {
			code, ok := codeByAccount[line.GLAccountID]
			return ok && strings.HasPrefix(code, prefix)
		},
	}
}

// Accumulator folds ledger lines into per-dimension raw balances in a
// single pass. Every configured axis is fed from the same visit of each
// line, so a 500k-line collection is scanned once regardless of how
// many dimensions are active. Feeding order does not matter and lines
// may arrive in chunks straight from a paginated extraction. One
// accumulator serves exactly one run.
type Accumulator struct {
	window PeriodWindow
	specs  []GroupingSpec
	sums   map[Dimension]map[string]*RawBalance
	stats  RunStats
	claims []claim // scratch, reused across Add calls
}

type claim struct {
	dimension Dimension
	key       string
}

// NewAccumulator builds an accumulator over the window for the given
// grouping axes.
func NewAccumulator(window PeriodWindow, specs ...GroupingSpec) *Accumulator {
	sums := make(map[Dimension]map[string]*RawBalance, len(specs))
	for _, spec := range specs {
		sums[spec.Dimension] = make(map[string]*RawBalance)
	}
	return &Accumulator{
		window: window,
		specs:  specs,
		sums:   sums,
		stats:  newRunStats(),
	}
}

// Add feeds one line through every grouping axis. Lines without a
// usable period tag or claimed by no axis are counted and dropped; no
// single line can abort the pass.
func (a *Accumulator) Add(line LedgerLine) {
	key, err := ParsePeriodKey(line.Period)
	if err != nil {
		if errors.Is(err, ErrPeriodMissing) {
			a.stats.skip(SkipMissingPeriod)
		} else {
			a.stats.skip(SkipInvalidPeriod)
		}
		return
	}

	claimed := a.claims[:0]
	for i := range a.specs {
		spec := &a.specs[i]
		if spec.Match != nil && !spec.Match(line) {
			continue
		}
		groupKey := spec.Key(line)
		if groupKey == "" {
			continue
		}
		claimed = append(claimed, claim{dimension: spec.Dimension, key: groupKey})
	}
	a.claims = claimed
	if len(claimed) == 0 {
		a.stats.skip(SkipNoGroupKey)
		return
	}

	net := NetValue(line, &a.stats)
	opening := a.window.InOpening(key)
	closing := a.window.InClosing(key)
	for _, c := range claimed {
		bal := a.sums[c.dimension][c.key]
		if bal == nil {
			bal = &RawBalance{}
			a.sums[c.dimension][c.key] = bal
		}
		bal.accumulate(net, opening, closing)
	}
	a.stats.Processed++
}

// AddAll feeds a batch of lines.
func (a *Accumulator) AddAll(lines []LedgerLine) {
	for _, line := range lines {
		a.Add(line)
	}
}

// Balances returns the accumulated sums for one dimension keyed by
// grouping key. The returned map is a copy; the accumulator keeps
// exclusive ownership of its scratch state.
func (a *Accumulator) Balances(dimension Dimension) map[string]RawBalance {
	src := a.sums[dimension]
	out := make(map[string]RawBalance, len(src))
	for key, bal := range src {
		out[key] = *bal
	}
	return out
}

// Stats reports the run diagnostics including distinct key counts per
// dimension.
func (a *Accumulator) Stats() RunStats {
	out := a.stats
	out.Skipped = make(map[SkipReason]int, len(a.stats.Skipped))
	for reason, n := range a.stats.Skipped {
		out.Skipped[reason] = n
	}
	out.AccountsByDimension = make(map[Dimension]int, len(a.sums))
	for dimension, m := range a.sums {
		out.AccountsByDimension[dimension] = len(m)
	}
	return out
}
