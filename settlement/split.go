/*
split.go - Pure share computation

PURPOSE:
  Given a transaction total and the requested participant shares, compute a
  consistent (amount, percent) pair for every non-creator participant plus
  the creator's residual. No I/O, no side effects; the ledger persists the
  result.

RULES:
  - No explicit amounts or percents: equal split across N participants plus
    the creator.
  - Explicit amounts present: amounts are primary. Reject when they sum past
    the total; creator takes the residual; missing percents are derived.
  - Explicit percents only: percents are primary. Reject past 100; amounts
    are derived; creator takes the residual of both.

ROUNDING:
  Every stored amount and percent is rounded to two decimals. The simple
  split path tolerates sub-cent drift; exact reconciliation is the
  redistribution engine's job (redistribute.go), where the last active
  participant absorbs the remainder.

SEE ALSO:
  - ledger.go: Calls ComputeShares on creation
  - redistribute.go: Exact re-normalization over the active set
*/
package settlement

import "github.com/shopspring/decimal"

// =============================================================================
// SPLIT CALCULATOR
// =============================================================================

// ComputedShare is one party's resolved share.
type ComputedShare struct {
	Amount  Money
	Percent decimal.Decimal
}

// SplitResult pairs each requested participant (same order as the input)
// with a resolved share, plus the creator's residual.
type SplitResult struct {
	Creator      ComputedShare
	Participants []ComputedShare
}

// ShareSpec is the split-relevant slice of a ShareRequest.
type ShareSpec struct {
	Amount  *Money
	Percent *decimal.Decimal
}

// SpecsOf extracts the split inputs from share requests.
func SpecsOf(reqs []ShareRequest) []ShareSpec {
	specs := make([]ShareSpec, len(reqs))
	for i, r := range reqs {
		specs[i] = ShareSpec{Amount: r.Amount, Percent: r.Percent}
	}
	return specs
}

// ComputeShares resolves every participant's share of total.
// total must be positive; the caller validates that beforehand.
func ComputeShares(total Money, specs []ShareSpec) (SplitResult, error) {
	hasAmount := false
	hasPercent := false
	for _, s := range specs {
		if s.Amount != nil {
			hasAmount = true
		}
		if s.Percent != nil {
			hasPercent = true
		}
	}

	switch {
	case !hasAmount && !hasPercent:
		return equalSplit(total, len(specs)), nil
	case hasAmount:
		return amountPrimarySplit(total, specs, hasPercent)
	default:
		return percentPrimarySplit(total, specs)
	}
}

// equalSplit divides total across n participants plus the creator.
func equalSplit(total Money, n int) SplitResult {
	parties := decimal.NewFromInt(int64(n) + 1)
	amount := total.Div(parties).Round2()
	percent := hundred.Div(parties).Round(2)

	share := ComputedShare{Amount: amount, Percent: percent}
	result := SplitResult{Creator: share}
	for i := 0; i < n; i++ {
		result.Participants = append(result.Participants, share)
	}
	return result
}

// amountPrimarySplit treats explicit amounts as the truth and derives the rest.
func amountPrimarySplit(total Money, specs []ShareSpec, explicitPercents bool) (SplitResult, error) {
	result := SplitResult{Participants: make([]ComputedShare, len(specs))}

	totalAmount := Money{Value: decimal.Zero}
	totalPercent := decimal.Zero
	for i, s := range specs {
		var amount Money
		switch {
		case s.Amount != nil:
			amount = s.Amount.Round2()
		case s.Percent != nil:
			amount = total.Mul(s.Percent.Div(hundred)).Round2()
		default:
			// Neither given alongside explicit amounts elsewhere: zero share.
			amount = Money{Value: decimal.Zero}
		}

		percent := PercentOf(amount, total)
		if s.Percent != nil {
			percent = s.Percent.Round(2)
		}

		result.Participants[i] = ComputedShare{Amount: amount, Percent: percent}
		totalAmount = totalAmount.Add(amount)
		totalPercent = totalPercent.Add(percent)
	}

	if totalAmount.GreaterThan(total) {
		return SplitResult{}, &ShareCapError{Total: total, Requested: totalAmount}
	}

	creatorAmount := total.Sub(totalAmount).Round2()
	creatorPercent := PercentOf(creatorAmount, total)
	if explicitPercents {
		creatorPercent = hundred.Sub(totalPercent).Round(2)
	}
	result.Creator = ComputedShare{Amount: creatorAmount, Percent: creatorPercent}
	return result, nil
}

// percentPrimarySplit mirrors the amount path with percent as the truth.
func percentPrimarySplit(total Money, specs []ShareSpec) (SplitResult, error) {
	result := SplitResult{Participants: make([]ComputedShare, len(specs))}

	totalAmount := Money{Value: decimal.Zero}
	totalPercent := decimal.Zero
	for i, s := range specs {
		percent := decimal.Zero
		if s.Percent != nil {
			percent = s.Percent.Round(2)
		}
		amount := total.Mul(percent.Div(hundred)).Round2()

		result.Participants[i] = ComputedShare{Amount: amount, Percent: percent}
		totalAmount = totalAmount.Add(amount)
		totalPercent = totalPercent.Add(percent)
	}

	if totalPercent.GreaterThan(hundred) {
		return SplitResult{}, &PercentCapError{Requested: totalPercent.String()}
	}

	// Residuals keep both dimensions reconciled to the whole.
	result.Creator = ComputedShare{
		Amount:  total.Sub(totalAmount).Round2(),
		Percent: hundred.Sub(totalPercent).Round(2),
	}
	return result, nil
}
