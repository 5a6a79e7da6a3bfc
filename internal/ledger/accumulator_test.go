package ledger

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func mustWindow(t *testing.T, startYear, startPeriod, endYear, endPeriod int) PeriodWindow {
	t.Helper()
	window, err := NewPeriodWindow(startYear, startPeriod, endYear, endPeriod)
	if err != nil {
		t.Fatalf("build window: %v", err)
	}
	return window
}

func requireEqual(t *testing.T, got decimal.Decimal, want string, field string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: got %s want %s", field, got.String(), want)
	}
}

func TestNetValuePrefersSignedAmount(t *testing.T) {
	var stats RunStats
	line := LedgerLine{SignedAmount: "-42.50", Debit: "999", Credit: "1"}
	if got := NetValue(line, &stats); !got.Equal(decimal.RequireFromString("-42.50")) {
		t.Fatalf("signed amount must win verbatim, got %s", got)
	}

	line = LedgerLine{Debit: "100.25", Credit: "0.25"}
	if got := NetValue(line, &stats); !got.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("debit minus credit: got %s", got)
	}

	line = LedgerLine{Credit: "7"}
	if got := NetValue(line, &stats); !got.Equal(decimal.RequireFromString("-7")) {
		t.Fatalf("missing debit treated as zero: got %s", got)
	}
	if stats.MalformedAmounts != 0 {
		t.Fatalf("no malformed amounts expected, got %d", stats.MalformedAmounts)
	}
}

func TestNetValueMalformedResolvesToZero(t *testing.T) {
	var stats RunStats
	line := LedgerLine{SignedAmount: "not-a-number"}
	if got := NetValue(line, &stats); !got.IsZero() {
		t.Fatalf("malformed signed amount must resolve to zero, got %s", got)
	}
	line = LedgerLine{Debit: "12,50", Credit: "oops"}
	if got := NetValue(line, &stats); !got.IsZero() {
		t.Fatalf("malformed sides must resolve to zero, got %s", got)
	}
	if stats.MalformedAmounts != 3 {
		t.Fatalf("expected 3 malformed diagnostics, got %d", stats.MalformedAmounts)
	}
}

func TestAccumulatorSignCorrectness(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 3)

	acc := NewAccumulator(window, GLAccountSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "100", Period: "2025002"})
	acc.Add(LedgerLine{GLAccountID: "acc-2", SignedAmount: "-100", Period: "2025002"})

	balances := acc.Balances(DimensionGLAccount)
	requireEqual(t, balances["acc-1"].ClosingDebit, "100", "acc-1 closing debit")
	requireEqual(t, balances["acc-1"].ClosingCredit, "0", "acc-1 closing credit")
	requireEqual(t, balances["acc-2"].ClosingDebit, "0", "acc-2 closing debit")
	requireEqual(t, balances["acc-2"].ClosingCredit, "100", "acc-2 closing credit")
}

func TestAccumulatorOpeningClosingScenario(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 1)

	acc := NewAccumulator(window, GLAccountSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "1000", Period: "2024/012"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "100", Period: "2025/001"})

	raw := acc.Balances(DimensionGLAccount)["acc-1"]
	requireEqual(t, raw.OpeningDebit, "1000", "opening debit")
	requireEqual(t, raw.OpeningCredit, "0", "opening credit")
	requireEqual(t, raw.ClosingDebit, "1100", "closing debit")
	requireEqual(t, raw.ClosingCredit, "0", "closing credit")
}

func TestAccumulatorSignFlipScenario(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 2)

	acc := NewAccumulator(window, GLAccountSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "300", Period: "2024012"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "-1000", Period: "2025001"})

	balance := Normalize(acc.Balances(DimensionGLAccount)["acc-1"], PolicyIndependentSign)
	requireEqual(t, balance.OpeningDebit, "300", "opening debit")
	requireEqual(t, balance.OpeningCredit, "0", "opening credit")
	requireEqual(t, balance.ClosingDebit, "0", "closing debit")
	requireEqual(t, balance.ClosingCredit, "700", "closing credit")
}

func TestAccumulatorMultiDimensionSinglePass(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 3)

	acc := NewAccumulator(window, GLAccountSpec(), PartnerSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", PartnerID: "bp-1", SignedAmount: "250", Period: "2025001"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "50", Period: "2025002"})

	gl := acc.Balances(DimensionGLAccount)
	partners := acc.Balances(DimensionPartner)
	requireEqual(t, gl["acc-1"].ClosingDebit, "300", "gl closing debit")
	requireEqual(t, partners["bp-1"].ClosingDebit, "250", "partner closing debit")
	if len(partners) != 1 {
		t.Fatalf("expected one partner key, got %d", len(partners))
	}

	stats := acc.Stats()
	if stats.Processed != 2 {
		t.Fatalf("expected 2 processed lines, got %d", stats.Processed)
	}
	if stats.AccountsByDimension[DimensionGLAccount] != 1 || stats.AccountsByDimension[DimensionPartner] != 1 {
		t.Fatalf("unexpected dimension counts: %v", stats.AccountsByDimension)
	}
}

func TestAccumulatorSkipDiagnostics(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 3)

	acc := NewAccumulator(window, GLAccountSpec(), PartnerSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "10"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "10", Period: "2025013"})
	acc.Add(LedgerLine{SignedAmount: "10", Period: "2025001"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "10", Period: "2025001"})

	stats := acc.Stats()
	if stats.Processed != 1 {
		t.Fatalf("expected 1 processed line, got %d", stats.Processed)
	}
	if stats.Skipped[SkipMissingPeriod] != 1 {
		t.Fatalf("missing period count: %v", stats.Skipped)
	}
	if stats.Skipped[SkipInvalidPeriod] != 1 {
		t.Fatalf("invalid period count: %v", stats.Skipped)
	}
	if stats.Skipped[SkipNoGroupKey] != 1 {
		t.Fatalf("no group key count: %v", stats.Skipped)
	}
	if stats.TotalSkipped() != 3 {
		t.Fatalf("total skipped: got %d", stats.TotalSkipped())
	}
}

func TestAccumulatorZeroNetContributesNeitherSide(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 3)

	acc := NewAccumulator(window, GLAccountSpec())
	acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "0", Period: "2025001"})
	acc.Add(LedgerLine{GLAccountID: "acc-1", Debit: "5", Credit: "5", Period: "2025001"})

	raw := acc.Balances(DimensionGLAccount)["acc-1"]
	if !raw.ClosingDebit.IsZero() || !raw.ClosingCredit.IsZero() {
		t.Fatalf("zero nets must not touch either side: %+v", raw)
	}
	if acc.Stats().Processed != 2 {
		t.Fatalf("zero-net lines still count as processed")
	}
}

func TestAccumulatorReorderInvariance(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 6)
	lines := syntheticLines(400)

	acc := NewAccumulator(window, GLAccountSpec(), PartnerSpec())
	acc.AddAll(lines)
	want := acc.Balances(DimensionGLAccount)

	shuffled := make([]LedgerLine, len(lines))
	copy(shuffled, lines)
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	again := NewAccumulator(window, GLAccountSpec(), PartnerSpec())
	again.AddAll(shuffled)
	got := again.Balances(DimensionGLAccount)

	compareRawBalances(t, want, got)
}

func TestAccumulatorAdditivity(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 6)
	lines := syntheticLines(301)

	full := NewAccumulator(window, GLAccountSpec())
	full.AddAll(lines)
	want := full.Balances(DimensionGLAccount)

	first := NewAccumulator(window, GLAccountSpec())
	first.AddAll(lines[:137])
	second := NewAccumulator(window, GLAccountSpec())
	second.AddAll(lines[137:])

	got := make(map[string]RawBalance)
	for _, part := range []map[string]RawBalance{first.Balances(DimensionGLAccount), second.Balances(DimensionGLAccount)} {
		for key, bal := range part {
			sum := got[key]
			sum.OpeningDebit = sum.OpeningDebit.Add(bal.OpeningDebit)
			sum.OpeningCredit = sum.OpeningCredit.Add(bal.OpeningCredit)
			sum.ClosingDebit = sum.ClosingDebit.Add(bal.ClosingDebit)
			sum.ClosingCredit = sum.ClosingCredit.Add(bal.ClosingCredit)
			got[key] = sum
		}
	}

	compareRawBalances(t, want, got)
}

func TestAccumulatorConservation(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 6)
	lines := syntheticLines(200)

	acc := NewAccumulator(window, GLAccountSpec())
	acc.AddAll(lines)

	var stats RunStats
	for key, bal := range acc.Balances(DimensionGLAccount) {
		expected := decimal.Zero
		for _, line := range lines {
			if line.GLAccountID != key {
				continue
			}
			periodKey, err := ParsePeriodKey(line.Period)
			if err != nil || !window.InClosing(periodKey) {
				continue
			}
			expected = expected.Add(NetValue(line, &stats))
		}
		net := bal.ClosingDebit.Sub(bal.ClosingCredit)
		if !net.Equal(expected) {
			t.Fatalf("account %s: closing net %s, sum of signed amounts %s", key, net, expected)
		}
	}
}

func TestAccumulatorDecimalPrecision(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 1)

	acc := NewAccumulator(window, GLAccountSpec())
	for i := 0; i < 100; i++ {
		acc.Add(LedgerLine{GLAccountID: "acc-1", SignedAmount: "1.01", Period: "2025001"})
	}

	raw := acc.Balances(DimensionGLAccount)["acc-1"]
	requireEqual(t, raw.ClosingDebit, "101.00", "closing debit")
}

func TestClassFilterSpecRestrictsByAccountCode(t *testing.T) {
	window := mustWindow(t, 2025, 1, 2025, 3)
	codes := map[string]string{
		"acc-payables": "401100",
		"acc-revenue":  "703000",
	}

	payables := Dimension("payables_partner")
	acc := NewAccumulator(window, PartnerSpec(), ClassFilterSpec(payables, codes, "401"))
	acc.Add(LedgerLine{GLAccountID: "acc-payables", PartnerID: "bp-1", SignedAmount: "-500", Period: "2025001"})
	acc.Add(LedgerLine{GLAccountID: "acc-revenue", PartnerID: "bp-1", SignedAmount: "-200", Period: "2025001"})
	acc.Add(LedgerLine{GLAccountID: "acc-payables", PartnerID: "bp-2", SignedAmount: "-100", Period: "2024012"})

	filtered := acc.Balances(payables)
	requireEqual(t, filtered["bp-1"].ClosingCredit, "500", "bp-1 filtered closing credit")
	requireEqual(t, filtered["bp-2"].OpeningCredit, "100", "bp-2 filtered opening credit")

	unfiltered := acc.Balances(DimensionPartner)
	requireEqual(t, unfiltered["bp-1"].ClosingCredit, "700", "bp-1 unfiltered closing credit")
}

func syntheticLines(n int) []LedgerLine {
	rng := rand.New(rand.NewSource(42))
	periods := []string{"2024010", "2024011", "2024012", "2025001", "2025002", "2025003", "2025006"}
	lines := make([]LedgerLine, 0, n)
	for i := 0; i < n; i++ {
		cents := rng.Intn(2_000_000) - 1_000_000
		amount := decimal.New(int64(cents), -2)
		line := LedgerLine{
			GLAccountID:  "acc-" + strconv.Itoa(rng.Intn(12)),
			SignedAmount: amount.String(),
			Period:       periods[rng.Intn(len(periods))],
		}
		if rng.Intn(3) == 0 {
			line.PartnerID = "bp-" + strconv.Itoa(rng.Intn(5))
		}
		lines = append(lines, line)
	}
	return lines
}

func compareRawBalances(t *testing.T, want, got map[string]RawBalance) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("key count mismatch: want %d got %d", len(want), len(got))
	}
	for key, w := range want {
		g, ok := got[key]
		if !ok {
			t.Fatalf("missing key %s", key)
		}
		if !w.OpeningDebit.Equal(g.OpeningDebit) || !w.OpeningCredit.Equal(g.OpeningCredit) ||
			!w.ClosingDebit.Equal(g.ClosingDebit) || !w.ClosingCredit.Equal(g.ClosingCredit) {
			t.Fatalf("balance mismatch for %s: want %+v got %+v", key, w, g)
		}
	}
}
