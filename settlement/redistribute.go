/*
redistribute.go - Dynamic re-normalization over the active participant set

PURPOSE:
  Recomputes every participant's effective share from scratch whenever the
  active (ACCEPTED) set may have changed. Effective shares of pending
  participants are zeroed, their base preserved; the transaction amount is
  distributed across active participants in proportion to their base shares.

EXACT RECONCILIATION:
  Shares are rounded to two decimals, so proportional distribution drifts by
  sub-cent amounts. The LAST active participant (in stable creation order)
  absorbs the remainder, so the sum of effective shares equals the
  transaction amount exactly.

DEGENERATE STATE:
  When no active participant has a nonzero base (legacy or malformed rows),
  the amount falls back to an exact-penny equal split: integer-cent floor per
  head, leftover cents handed one at a time to the first participants in
  order. This is a repair path, not an error.

IDEMPOTENCE:
  Nil base fields are backfilled from the current effective share before any
  distribution, so repeated runs with no intervening status change produce
  byte-identical persisted values.

SEE ALSO:
  - ledger.go: Triggers recalculation after every status-relevant mutation
*/
package settlement

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DYNAMIC REDISTRIBUTION ENGINE
// =============================================================================

// Recalculate re-normalizes effective shares for one transaction inside its
// own unit of work. Ledger operations that already hold one call the
// unexported form instead.
func (e *Engine) Recalculate(ctx context.Context, id TransactionID) error {
	unlock := e.lockTransaction(id)
	defer unlock()

	return e.store.WithTx(ctx, func(s Store) error {
		return recalculate(ctx, s, id, e.log)
	})
}

// recalculate runs the redistribution algorithm against s. It returns only
// storage errors; business-wise it either succeeds or no-ops.
func recalculate(ctx context.Context, s Store, id TransactionID, log *slog.Logger) error {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return nil
	}

	parts, err := s.ListParticipants(ctx, id)
	if err != nil {
		return err
	}

	var active, pending []*Participant
	for i := range parts {
		p := &parts[i]
		switch p.Status {
		case StatusAccepted:
			active = append(active, p)
		case StatusPending:
			pending = append(pending, p)
		default:
			// REJECTED/EXITED are already zero; only backfill legacy rows
			// that predate the base/effective split.
			if p.BaseShareAmount == nil {
				p.SetBase(p.ShareAmount, p.SharePercent)
				if err := s.UpdateParticipant(ctx, *p); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range pending {
		if p.BaseShareAmount == nil {
			p.SetBase(p.ShareAmount, p.SharePercent)
		}
		p.ShareAmount = MoneyFromCents(0)
		p.SharePercent = decimal.Zero
		if err := s.UpdateParticipant(ctx, *p); err != nil {
			return err
		}
	}

	if len(active) == 0 {
		return nil
	}

	// Fix bases first so repeated runs distribute from the same inputs.
	totalBase := MoneyFromCents(0)
	for _, p := range active {
		if p.BaseShareAmount == nil {
			p.SetBase(p.ShareAmount, p.SharePercent)
		}
		totalBase = totalBase.Add(*p.BaseShareAmount)
	}

	if totalBase.IsPositive() {
		distributeProportionally(tx, active, totalBase)
	} else {
		distributeEqualPennies(tx, active)
	}

	for _, p := range active {
		if err := s.UpdateParticipant(ctx, *p); err != nil {
			return err
		}
	}

	log.Debug("recalculated shares",
		"transaction_id", tx.ID,
		"creator_id", tx.CreatorID,
		"amount", tx.Amount.String(),
		"active", len(active),
		"pending", len(pending),
		"total_base", totalBase.String(),
	)
	return nil
}

// distributeProportionally assigns total*base/totalBase to each active
// participant; the last one in iteration order absorbs the rounding drift.
func distributeProportionally(tx *Transaction, active []*Participant, totalBase Money) {
	remaining := tx.Amount
	for i, p := range active {
		var share Money
		if i < len(active)-1 {
			ratio := p.BaseShareAmount.Value.Div(totalBase.Value)
			share = tx.Amount.Mul(ratio).Round2()
			remaining = remaining.Sub(share)
		} else {
			share = remaining.Round2()
		}
		p.ShareAmount = share
		p.SharePercent = PercentOf(share, tx.Amount)
	}
}

// distributeEqualPennies splits total into integer cents per head, handing
// leftover cents to the first participants in iteration order.
func distributeEqualPennies(tx *Transaction, active []*Participant) {
	n := int64(len(active))
	totalCents := tx.Amount.Cents()
	baseCents := totalCents / n
	leftover := totalCents - baseCents*n

	for i, p := range active {
		cents := baseCents
		if int64(i) < leftover {
			cents++
		}
		p.ShareAmount = MoneyFromCents(cents)
		p.SharePercent = PercentOf(p.ShareAmount, tx.Amount)
	}
}
