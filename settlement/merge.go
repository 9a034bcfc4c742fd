/*
merge.go - Linking placeholder names to registered users

PURPOSE:
  A creator who shared transactions with an unregistered "placeholder" can
  ask a registered user to claim that name. On acceptance, every placeholder
  row under the requester's transactions is folded into the target user:
  merged into the target's existing row when one exists (shares summed), or
  repointed otherwise. Each affected transaction is re-normalized.

The target answers; the requester only learns the outcome.
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newMergeRequestID() MergeRequestID { return MergeRequestID(uuid.NewString()) }

// =============================================================================
// MERGE REQUESTS
// =============================================================================

// RequestMerge opens a pending link between requester's placeholder name and
// the target user, and notifies the target.
func (e *Engine) RequestMerge(ctx context.Context, requester UserID, placeholderName string, target UserID) (*MergeRequest, error) {
	m := MergeRequest{
		ID:              newMergeRequestID(),
		RequesterID:     requester,
		PlaceholderName: placeholderName,
		TargetUserID:    target,
		Status:          MergePending,
		CreatedAt:       time.Now().UTC(),
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		return s.InsertMergeRequest(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, Notification{
		UserID:  target,
		Event:   EventMergeRequested,
		Title:   "Merge request",
		Message: fmt.Sprintf("A user wants to link the placeholder %q to your account", placeholderName),
		Payload: map[string]string{"merge_request_id": string(m.ID)},
	})
	return &m, nil
}

// RespondToMerge records the target's answer. Acceptance rewrites every
// matching placeholder row and re-normalizes each affected transaction, all
// in one unit of work.
func (e *Engine) RespondToMerge(ctx context.Context, mergeID MergeRequestID, caller UserID, status MergeStatus) error {
	if status != MergeAccepted && status != MergeRejected {
		return ErrInvalidStatus
	}

	nb := &notebook{}
	err := e.store.WithTx(ctx, func(s Store) error {
		m, err := s.GetMergeRequest(ctx, mergeID)
		if err != nil {
			return err
		}
		// An outsider gets the same answer as a missing request.
		if m == nil || m.TargetUserID != caller {
			return ErrMergeRequestNotFound
		}
		if m.Status != MergePending {
			return ErrMergeRequestNotFound
		}

		now := time.Now().UTC()
		m.Status = status
		m.ResolvedAt = &now
		if err := s.UpdateMergeRequest(ctx, *m); err != nil {
			return err
		}

		outcome := "rejected"
		if status == MergeAccepted {
			outcome = "accepted"
			if err := e.adoptPlaceholders(ctx, s, m); err != nil {
				return err
			}
		}
		nb.add(m.RequesterID, EventMergeResolved,
			"Merge request resolved",
			fmt.Sprintf("Your merge request for %q was %s", m.PlaceholderName, outcome),
			map[string]string{"merge_request_id": string(m.ID), "status": string(status)})
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx, nb)
	return nil
}

// adoptPlaceholders folds every matching placeholder row into the target
// user and re-normalizes each touched transaction once.
func (e *Engine) adoptPlaceholders(ctx context.Context, s Store, m *MergeRequest) error {
	rows, err := s.FindPlaceholderParticipants(ctx, m.RequesterID, m.PlaceholderName)
	if err != nil {
		return err
	}

	touched := make(map[TransactionID]bool)
	for i := range rows {
		p := rows[i]

		existing, err := findUserRow(ctx, s, p.TransactionID, m.TargetUserID)
		if err != nil {
			return err
		}

		if existing != nil {
			// The target already participates: fold the placeholder's stake
			// into their row and drop the placeholder.
			merged := existing.ShareAmount.Add(p.ShareAmount).Round2()
			existing.ShareAmount = merged
			baseSum := existing.BaseAmountOrEffective().Add(p.BaseAmountOrEffective()).Round2()
			existing.SetBase(baseSum, existing.SharePercent)
			if err := s.UpdateParticipant(ctx, *existing); err != nil {
				return err
			}
			if err := s.DeleteParticipant(ctx, p.ID); err != nil {
				return err
			}
		} else {
			p.UserID = m.TargetUserID
			p.PlaceholderName = ""
			p.Status = StatusAccepted
			if err := s.UpdateParticipant(ctx, p); err != nil {
				return err
			}
		}
		touched[p.TransactionID] = true
	}

	for id := range touched {
		if err := recalculate(ctx, s, id, e.log); err != nil {
			return err
		}
	}
	return nil
}

func findUserRow(ctx context.Context, s Store, txID TransactionID, user UserID) (*Participant, error) {
	parts, err := s.ListParticipants(ctx, txID)
	if err != nil {
		return nil, err
	}
	for i := range parts {
		if parts[i].UserID == user {
			return &parts[i], nil
		}
	}
	return nil, nil
}
