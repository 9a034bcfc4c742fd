/*
ledger.go - Participant mutations for one transaction

PURPOSE:
  The participant ledger owns every mutation of a transaction's participant
  set: creation alongside the transaction, reconciliation against an edited
  list, invitation responses, and leaving. It decides which notifications to
  emit for each change; delivery belongs to the Notifier.

LIFECYCLE RULES:
  - The creator always holds exactly one ACCEPTED row and is never deleted
    while the transaction exists.
  - Placeholders (no user id) are born ACCEPTED; there is nobody to invite.
  - Registered invitees are born PENDING and must confirm. Any
    money-affecting edit (structural transaction change, or a base share
    moved by more than ShareTolerance) forces them back to PENDING.
  - When the last non-creator stops being PENDING or ACCEPTED and the
    responder did not just accept, the transaction reverts to private.

Every operation here runs inside the caller's unit of work and finishes with
one redistribution pass.

SEE ALSO:
  - lifecycle.go: Opens the units of work and applies transaction fields
  - redistribute.go: Effective-share normalization
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// HELPERS
// =============================================================================

func newParticipantID() ParticipantID { return ParticipantID(uuid.NewString()) }

// splitRoster separates the creator's row from everyone else's.
func splitRoster(tx *Transaction, parts []Participant) (creator *Participant, others []*Participant) {
	for i := range parts {
		p := &parts[i]
		if p.IsCreator(tx) {
			creator = p
			continue
		}
		others = append(others, p)
	}
	return creator, others
}

// resolveIdentity turns a share request into (userID, placeholderName).
// Username lookups that miss the directory fall back to a placeholder.
func (e *Engine) resolveIdentity(ctx context.Context, req ShareRequest) (UserID, string, error) {
	if req.UserID != "" {
		return req.UserID, "", nil
	}
	if req.Username != "" {
		id, ok, err := e.users.LookupByUsername(ctx, req.Username)
		if err != nil {
			return "", "", err
		}
		if ok {
			return id, "", nil
		}
		return "", req.Username, nil
	}
	return "", req.PlaceholderName, nil
}

// =============================================================================
// CREATE PARTICIPANTS
// =============================================================================

// createParticipants persists the full roster (creator included) for a fresh
// transaction and invites registered participants. Runs inside the creation
// unit of work: a share-cap violation here rolls back the transaction row.
func (e *Engine) createParticipants(ctx context.Context, s Store, nb *notebook, tx *Transaction, reqs []ShareRequest) error {
	result, err := ComputeShares(tx.Amount, SpecsOf(reqs))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	creator := Participant{
		ID:            newParticipantID(),
		TransactionID: tx.ID,
		UserID:        tx.CreatorID,
		ShareAmount:   result.Creator.Amount,
		SharePercent:  result.Creator.Percent,
		Status:        StatusAccepted,
		Seq:           0,
		CreatedAt:     now,
	}
	creator.SetBase(result.Creator.Amount, result.Creator.Percent)

	batch := []Participant{creator}
	for i, req := range reqs {
		userID, placeholder, err := e.resolveIdentity(ctx, req)
		if err != nil {
			return err
		}

		share := result.Participants[i]
		p := Participant{
			ID:              newParticipantID(),
			TransactionID:   tx.ID,
			UserID:          userID,
			PlaceholderName: placeholder,
			ShareAmount:     share.Amount,
			SharePercent:    share.Percent,
			Status:          StatusPending,
			Seq:             int64(i) + 1,
			CreatedAt:       now,
		}
		p.SetBase(share.Amount, share.Percent)
		if p.IsPlaceholder() {
			// Unregistered parties have no invitation to answer.
			p.Status = StatusAccepted
		} else {
			nb.add(userID, EventShareInvitation,
				"Shared transaction invitation",
				fmt.Sprintf("You were invited to share %q (%s)", tx.Description, tx.Amount),
				map[string]string{"transaction_id": string(tx.ID)})
		}
		batch = append(batch, p)
	}

	if err := s.InsertParticipants(ctx, batch); err != nil {
		return err
	}

	// One pass normalizes everything, including the all-placeholder case
	// where the whole roster is already active.
	return recalculate(ctx, s, tx.ID, e.log)
}

// =============================================================================
// UPDATE PARTICIPANTS
// =============================================================================

// updateParticipants reconciles the stored roster against reqs. A nil reqs
// with critical=true means the transaction's own fields changed: every
// registered non-creator is sent back to PENDING for re-confirmation.
func (e *Engine) updateParticipants(ctx context.Context, s Store, nb *notebook, tx *Transaction, reqs []ShareRequest, critical bool) error {
	parts, err := s.ListParticipants(ctx, tx.ID)
	if err != nil {
		return err
	}
	creator, others := splitRoster(tx, parts)
	if creator == nil {
		return ErrParticipantNotFound
	}

	if reqs == nil {
		if critical {
			if err := e.forceReview(ctx, s, nb, tx, others); err != nil {
				return err
			}
		}
		return recalculate(ctx, s, tx.ID, e.log)
	}

	consumed := make(map[int]bool, len(reqs))
	nextSeq := creator.Seq
	for _, p := range others {
		if p.Seq > nextSeq {
			nextSeq = p.Seq
		}
	}

	// Reconcile existing rows: match by participant id first, then user id.
	for _, p := range others {
		idx, ok := matchRequest(p, reqs, consumed)
		if !ok {
			if err := s.DeleteParticipant(ctx, p.ID); err != nil {
				return err
			}
			nb.add(p.UserID, EventShareRemoved,
				"Removed from shared transaction",
				fmt.Sprintf("You were removed from %q", tx.Description),
				map[string]string{"transaction_id": string(tx.ID)})
			continue
		}
		req := reqs[idx]

		newBase := p.BaseAmountOrEffective()
		switch {
		case req.Amount != nil:
			newBase = req.Amount.Round2()
		case req.Percent != nil:
			newBase = tx.Amount.Mul(req.Percent.Div(hundred)).Round2()
		}
		newPercent := PercentOf(newBase, tx.Amount)
		if req.Percent != nil {
			newPercent = req.Percent.Round(2)
		}
		changed := !newBase.WithinTolerance(p.BaseAmountOrEffective(), ShareTolerance)

		if p.IsPlaceholder() {
			// Placeholders never confirm; a pending one flips active.
			if p.Status == StatusPending {
				p.Status = StatusAccepted
			}
		} else if critical || changed {
			p.Status = StatusPending
			nb.add(p.UserID, EventShareReview,
				"Shared transaction changed",
				fmt.Sprintf("%q changed, please re-review your share", tx.Description),
				map[string]string{"transaction_id": string(tx.ID)})
		}

		p.SetBase(newBase, newPercent)
		if err := s.UpdateParticipant(ctx, *p); err != nil {
			return err
		}
	}

	// Insert the genuinely new entries.
	for i, req := range reqs {
		if consumed[i] {
			continue
		}
		userID, placeholder, err := e.resolveIdentity(ctx, req)
		if err != nil {
			return err
		}

		base := Money{}
		switch {
		case req.Amount != nil:
			base = req.Amount.Round2()
		case req.Percent != nil:
			base = tx.Amount.Mul(req.Percent.Div(hundred)).Round2()
		}
		percent := PercentOf(base, tx.Amount)
		if req.Percent != nil {
			percent = req.Percent.Round(2)
		}

		nextSeq++
		p := Participant{
			ID:              newParticipantID(),
			TransactionID:   tx.ID,
			UserID:          userID,
			PlaceholderName: placeholder,
			ShareAmount:     base,
			SharePercent:    percent,
			Status:          StatusPending,
			Seq:             nextSeq,
			CreatedAt:       time.Now().UTC(),
		}
		p.SetBase(base, percent)
		if p.IsPlaceholder() {
			p.Status = StatusAccepted
		} else {
			nb.add(userID, EventShareInvitation,
				"Shared transaction invitation",
				fmt.Sprintf("You were invited to share %q (%s)", tx.Description, tx.Amount),
				map[string]string{"transaction_id": string(tx.ID)})
		}
		if err := s.InsertParticipants(ctx, []Participant{p}); err != nil {
			return err
		}
	}

	// Creator residual over the surviving active+pending roster.
	remaining, err := s.ListParticipants(ctx, tx.ID)
	if err != nil {
		return err
	}
	creator, others = splitRoster(tx, remaining)
	if creator == nil {
		return ErrParticipantNotFound
	}

	othersBase := MoneyFromCents(0)
	for _, p := range others {
		if p.Status == StatusAccepted || p.Status == StatusPending {
			othersBase = othersBase.Add(p.BaseAmountOrEffective())
		}
	}
	if othersBase.GreaterThan(tx.Amount.Add(MoneyFromDecimal(SumTolerance))) {
		return &ShareCapError{TransactionID: tx.ID, Total: tx.Amount, Requested: othersBase}
	}

	creatorBase := tx.Amount.Sub(othersBase).Round2()
	if creatorBase.IsNegative() {
		creatorBase = MoneyFromCents(0)
	}
	creator.SetBase(creatorBase, PercentOf(creatorBase, tx.Amount))
	if err := s.UpdateParticipant(ctx, *creator); err != nil {
		return err
	}

	return recalculate(ctx, s, tx.ID, e.log)
}

// matchRequest finds the request describing p, preferring the explicit
// participant id over the user id. Each request matches at most one row.
func matchRequest(p *Participant, reqs []ShareRequest, consumed map[int]bool) (int, bool) {
	for i, req := range reqs {
		if !consumed[i] && req.ParticipantID != "" && req.ParticipantID == p.ID {
			consumed[i] = true
			return i, true
		}
	}
	for i, req := range reqs {
		if !consumed[i] && req.ParticipantID == "" && req.UserID != "" && req.UserID == p.UserID {
			consumed[i] = true
			return i, true
		}
	}
	return 0, false
}

// forceReview sends every registered non-creator back to PENDING after a
// structural edit that kept the roster untouched.
func (e *Engine) forceReview(ctx context.Context, s Store, nb *notebook, tx *Transaction, others []*Participant) error {
	for _, p := range others {
		if p.IsPlaceholder() {
			continue
		}
		p.Status = StatusPending
		if err := s.UpdateParticipant(ctx, *p); err != nil {
			return err
		}
		nb.add(p.UserID, EventShareReview,
			"Shared transaction changed",
			fmt.Sprintf("%q changed, please re-review your share", tx.Description),
			map[string]string{"transaction_id": string(tx.ID)})
	}
	return nil
}

// =============================================================================
// INVITATION RESPONSE
// =============================================================================

// RespondToInvitation records the caller's ACCEPTED/REJECTED answer,
// re-normalizes shares when the active set changed, broadcasts the outcome,
// and demotes the transaction to private when nobody shares it anymore.
func (e *Engine) RespondToInvitation(ctx context.Context, txID TransactionID, userID UserID, status ParticipantStatus) error {
	if !ValidResponse(status) {
		return ErrInvalidStatus
	}
	return e.applyStatusChange(ctx, txID, userID, status)
}

// LeaveTransaction marks the caller EXITED and zeroes their share.
func (e *Engine) LeaveTransaction(ctx context.Context, txID TransactionID, userID UserID) error {
	return e.applyStatusChange(ctx, txID, userID, StatusExited)
}

func (e *Engine) applyStatusChange(ctx context.Context, txID TransactionID, userID UserID, status ParticipantStatus) error {
	if userID == "" {
		return ErrParticipantNotFound
	}
	unlock := e.lockTransaction(txID)
	defer unlock()

	nb := &notebook{}
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}

		parts, err := s.ListParticipants(ctx, txID)
		if err != nil {
			return err
		}
		_, others := splitRoster(tx, parts)

		var target *Participant
		for _, p := range others {
			if p.UserID == userID {
				target = p
				break
			}
		}
		if target == nil {
			return ErrParticipantNotFound
		}

		priorShare := target.ShareAmount
		target.Status = status
		if status != StatusAccepted {
			if target.BaseShareAmount == nil {
				target.SetBase(priorShare, target.SharePercent)
			}
			target.ShareAmount = MoneyFromCents(0)
			target.SharePercent = PercentOf(MoneyFromCents(0), tx.Amount)
		}
		if err := s.UpdateParticipant(ctx, *target); err != nil {
			return err
		}

		// Accepting with a zeroed share, or vacating a nonzero one, moves
		// money between the active participants.
		needsRecalc := (status == StatusAccepted && priorShare.IsZero()) ||
			(status != StatusAccepted && !priorShare.IsZero())
		if needsRecalc {
			if err := recalculate(ctx, s, txID, e.log); err != nil {
				return err
			}
		}

		verb := "accepted"
		event := EventShareResponse
		switch status {
		case StatusRejected:
			verb = "rejected"
		case StatusExited:
			verb = "left"
		}
		outcome := fmt.Sprintf("A participant %s the shared transaction %q", verb, tx.Description)
		payload := map[string]string{"transaction_id": string(tx.ID), "status": string(status)}

		nb.add(tx.CreatorID, event, "Shared transaction update", outcome, payload)
		for _, p := range others {
			if p == target || p.IsPlaceholder() || p.Status != StatusAccepted {
				continue
			}
			nb.add(p.UserID, event, "Shared transaction update", outcome, payload)
		}

		// Demotion: nobody pending or accepted besides the creator, and the
		// responder did not just accept.
		if status != StatusAccepted {
			anyLive := false
			for _, p := range others {
				if p.Status == StatusPending || p.Status == StatusAccepted {
					anyLive = true
					break
				}
			}
			if !anyLive && tx.IsShared {
				tx.IsShared = false
				if err := s.UpdateTransaction(ctx, *tx); err != nil {
					return err
				}
				nb.add(tx.CreatorID, EventShareReverted,
					"Transaction is private again",
					fmt.Sprintf("All participants declined or left %q", tx.Description),
					map[string]string{"transaction_id": string(tx.ID)})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx, nb)
	return nil
}
