package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizationPolicy selects how raw opening/closing sums become
// one-sided balances. The two policies disagree exactly when an
// account's running balance crosses zero between the opening and
// closing boundaries.
type NormalizationPolicy string

const (
	// PolicyIndependentSign presents opening and closing each on the
	// side of its own net value.
	PolicyIndependentSign NormalizationPolicy = "INDEPENDENT_SIGN"
	// PolicyClosingAuthoritative puts both pairs on the side dictated
	// by the closing net value; a zero closing falls back to the
	// opening side, and a fully zero balance sits on the debit side.
	PolicyClosingAuthoritative NormalizationPolicy = "CLOSING_AUTHORITATIVE"
)

// ParseNormalizationPolicy resolves a configuration value into a policy.
func ParseNormalizationPolicy(value string) (NormalizationPolicy, error) {
	switch NormalizationPolicy(strings.ToUpper(strings.TrimSpace(value))) {
	case PolicyIndependentSign:
		return PolicyIndependentSign, nil
	case PolicyClosingAuthoritative:
		return PolicyClosingAuthoritative, nil
	}
	return "", fmt.Errorf("ledger: unknown normalization policy %q", value)
}

// Balance is the normalized presentation form of one account's
// accumulation: all four fields non-negative and at most one nonzero
// within the opening pair and within the closing pair.
type Balance struct {
	OpeningDebit  decimal.Decimal
	OpeningCredit decimal.Decimal
	ClosingDebit  decimal.Decimal
	ClosingCredit decimal.Decimal
}

// OpeningNet returns the signed opening position.
func (b Balance) OpeningNet() decimal.Decimal {
	return b.OpeningDebit.Sub(b.OpeningCredit)
}

// ClosingNet returns the signed closing position.
func (b Balance) ClosingNet() decimal.Decimal {
	return b.ClosingDebit.Sub(b.ClosingCredit)
}

// IsZero reports whether all four fields are zero.
func (b Balance) IsZero() bool {
	return b.OpeningDebit.IsZero() && b.OpeningCredit.IsZero() &&
		b.ClosingDebit.IsZero() && b.ClosingCredit.IsZero()
}

type balanceSide int

const (
	sideNone balanceSide = iota
	sideDebit
	sideCredit
)

func sideOf(net decimal.Decimal) balanceSide {
	switch {
	case net.IsPositive():
		return sideDebit
	case net.IsNegative():
		return sideCredit
	}
	return sideNone
}

// Normalize converts raw sums into a Balance under the given policy.
func Normalize(raw RawBalance, policy NormalizationPolicy) Balance {
	openingNet := raw.OpeningDebit.Sub(raw.OpeningCredit)
	closingNet := raw.ClosingDebit.Sub(raw.ClosingCredit)

	if policy == PolicyClosingAuthoritative {
		side := sideOf(closingNet)
		if side == sideNone {
			side = sideOf(openingNet)
		}
		if side == sideCredit {
			return Balance{
				OpeningCredit: openingNet.Abs(),
				ClosingCredit: closingNet.Abs(),
			}
		}
		return Balance{
			OpeningDebit: openingNet.Abs(),
			ClosingDebit: closingNet.Abs(),
		}
	}

	out := Balance{}
	if openingNet.IsNegative() {
		out.OpeningCredit = openingNet.Neg()
	} else {
		out.OpeningDebit = openingNet
	}
	if closingNet.IsNegative() {
		out.ClosingCredit = closingNet.Neg()
	} else {
		out.ClosingDebit = closingNet
	}
	return out
}

// NormalizeAll converts an accumulated dimension map into presentation
// balances under the given policy.
func NormalizeAll(raw map[string]RawBalance, policy NormalizationPolicy) map[string]Balance {
	out := make(map[string]Balance, len(raw))
	for key, acc := range raw {
		out[key] = Normalize(acc, policy)
	}
	return out
}
