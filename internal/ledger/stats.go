package ledger

// SkipReason classifies why a line was excluded from accumulation.
type SkipReason string

const (
	// SkipMissingPeriod counts lines with no assigned accounting period.
	SkipMissingPeriod SkipReason = "missing_period"
	// SkipInvalidPeriod counts lines whose period tag falls outside the
	// valid set.
	SkipInvalidPeriod SkipReason = "invalid_period"
	// SkipNoGroupKey counts lines claimed by no grouping dimension.
	SkipNoGroupKey SkipReason = "no_group_key"
)

// RunStats carries the diagnostics every consolidation run must
// surface: totals processed and skipped with a reason breakdown,
// malformed-amount occurrences and distinct account counts per
// dimension. Single lines never abort a batch; they end up here.
type RunStats struct {
	Processed           int
	Skipped             map[SkipReason]int
	MalformedAmounts    int
	AccountsByDimension map[Dimension]int
}

func newRunStats() RunStats {
	return RunStats{Skipped: make(map[SkipReason]int)}
}

// TotalSkipped sums the skip counts across all reasons.
func (s RunStats) TotalSkipped() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

func (s *RunStats) skip(reason SkipReason) {
	if s.Skipped == nil {
		s.Skipped = make(map[SkipReason]int)
	}
	s.Skipped[reason]++
}
