package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerLine is one posting against an account for an accounting
// period, as delivered by the extraction client. Numeric fields keep
// the raw extracted text; resolution to decimals happens exactly once
// inside the pass so malformed values can be counted instead of
// aborting a multi-hour batch.
type LedgerLine struct {
	// GLAccountID references the chart-of-accounts entity. Empty when
	// the line carries no general-ledger reference.
	GLAccountID string
	// PartnerID references a customer/supplier sub-ledger entity,
	// tracked independently of the GL account.
	PartnerID string
	// SignedAmount is the precomputed net value when the source
	// provides one: debit positive, credit negative.
	SignedAmount string
	// Debit and Credit are the raw side amounts, used only when
	// SignedAmount is absent.
	Debit  string
	Credit string
	// Period is the assigned accounting period tag ("2025005" or
	// "2025/005"); empty when unassigned.
	Period string
	// TransactionDate is a secondary ordering attribute. Window
	// membership always uses the assigned period, never this date.
	TransactionDate time.Time
}

// NetValue derives the signed magnitude of a line. A present signed
// amount is trusted verbatim; otherwise the value is debit minus
// credit with absent sides treated as zero. Malformed numeric text
// resolves to zero and increments the malformed-amount diagnostic on
// stats when given.
func NetValue(line LedgerLine, stats *RunStats) decimal.Decimal {
	if strings.TrimSpace(line.SignedAmount) != "" {
		return parseAmount(line.SignedAmount, stats)
	}
	debit := parseAmount(line.Debit, stats)
	credit := parseAmount(line.Credit, stats)
	return debit.Sub(credit)
}

func parseAmount(raw string, stats *RunStats) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		if stats != nil {
			stats.MalformedAmounts++
		}
		return decimal.Zero
	}
	return value
}
