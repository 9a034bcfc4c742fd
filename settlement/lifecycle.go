/*
lifecycle.go - Transaction create/update/delete and the glue around them

PURPOSE:
  Entry points for transaction-level mutations. Each one opens exactly one
  unit of work, serialized per transaction id, and delegates participant
  work to the ledger. Creation also materializes installment children for
  purchases paid in parts.

ATOMICITY:
  Creation inserts the transaction row first and computes shares second, so
  a share-cap violation is detected after the row exists; the unit of work
  rolls everything back, transaction row included. No partial state ever
  commits, and no notifications leave the buffer.

AUTHORIZATION:
  Update, delete, and occurrence exclusion are creator-only. The engine
  checks it here, not in the ledger.

SEE ALSO:
  - ledger.go: Participant reconciliation
  - recurrence.go: Occurrence expansion for fixed transactions
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

// =============================================================================
// REQUESTS
// =============================================================================

type CreateTransactionRequest struct {
	Amount           Money
	Currency         string
	Type             TransactionType
	Date             time.Time
	Description      string
	CategoryID       CategoryID
	CreatorID        UserID
	IsFixed          bool
	RecurrenceEndsAt *time.Time
	InstallmentCount int
	Participants     []ShareRequest
}

// UpdateTransactionRequest carries only the fields the caller wants changed.
// A nil Participants slice leaves the roster untouched; an empty one removes
// every non-creator participant.
type UpdateTransactionRequest struct {
	TransactionID TransactionID
	Amount        *Money
	Date          *time.Time
	Description   *string
	CategoryID    *CategoryID
	Participants  []ShareRequest
}

// TransactionView is a transaction with its full roster, for read paths.
type TransactionView struct {
	Transaction  Transaction
	Participants []Participant
}

// =============================================================================
// CREATE
// =============================================================================

func (e *Engine) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	tx := Transaction{
		ID:               newTransactionID(),
		Amount:           req.Amount.Round2(),
		Currency:         req.Currency,
		Type:             req.Type,
		Date:             req.Date,
		Description:      req.Description,
		IsShared:         len(req.Participants) > 0,
		IsFixed:          req.IsFixed,
		RecurrenceEndsAt: req.RecurrenceEndsAt,
		InstallmentCount: req.InstallmentCount,
		InstallmentIndex: 1,
		CreatorID:        req.CreatorID,
		CategoryID:       req.CategoryID,
		CreatedAt:        time.Now().UTC(),
	}

	// An N-part purchase persists N rows that sum to the total, so the
	// parent keeps only the first slice and absorbs the leftover cents.
	var installmentCents int64
	if tx.InstallmentCount > 1 {
		totalCents := tx.Amount.Cents()
		n := int64(tx.InstallmentCount)
		installmentCents = totalCents / n
		tx.Amount = MoneyFromCents(installmentCents + totalCents%n)
	}

	nb := &notebook{}
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		if tx.InstallmentCount > 1 {
			if err := e.createInstallments(ctx, s, &tx, installmentCents); err != nil {
				return err
			}
		}
		return e.createParticipants(ctx, s, nb, &tx, req.Participants)
	})
	if err != nil {
		return nil, err
	}

	e.flush(ctx, nb)
	e.log.Info("transaction created",
		"transaction_id", tx.ID,
		"creator_id", tx.CreatorID,
		"amount", tx.Amount.String(),
		"shared", tx.IsShared,
	)
	return &tx, nil
}

// createInstallments materializes the remaining charges of an N-part
// purchase as private monthly child transactions, each carrying perCents.
// The parent row already holds the first slice plus the leftover cents.
func (e *Engine) createInstallments(ctx context.Context, s Store, parent *Transaction, perCents int64) error {
	for i := 2; i <= parent.InstallmentCount; i++ {
		child := Transaction{
			ID:               newTransactionID(),
			Amount:           MoneyFromCents(perCents),
			Currency:         parent.Currency,
			Type:             parent.Type,
			Date:             parent.Date.AddDate(0, i-1, 0),
			Description:      fmt.Sprintf("%s (%d/%d)", parent.Description, i, parent.InstallmentCount),
			InstallmentCount: parent.InstallmentCount,
			InstallmentIndex: i,
			ParentID:         parent.ID,
			CreatorID:        parent.CreatorID,
			CategoryID:       parent.CategoryID,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.InsertTransaction(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

func (e *Engine) UpdateTransaction(ctx context.Context, userID UserID, req UpdateTransactionRequest) (*Transaction, error) {
	unlock := e.lockTransaction(req.TransactionID)
	defer unlock()

	nb := &notebook{}
	var updated *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if tx.CreatorID != userID {
			return ErrNotCreator
		}

		critical := false
		if req.Amount != nil && !req.Amount.Round2().Equal(tx.Amount) {
			if !req.Amount.IsPositive() {
				return ErrNonPositiveAmount
			}
			tx.Amount = req.Amount.Round2()
			critical = true
		}
		if req.Date != nil && !req.Date.Equal(tx.Date) {
			tx.Date = *req.Date
			critical = true
		}
		if req.Description != nil && *req.Description != tx.Description {
			tx.Description = *req.Description
			critical = true
		}
		if req.CategoryID != nil && *req.CategoryID != tx.CategoryID {
			tx.CategoryID = *req.CategoryID
			critical = true
		}
		if err := s.UpdateTransaction(ctx, *tx); err != nil {
			return err
		}

		if err := e.updateParticipants(ctx, s, nb, tx, req.Participants, critical); err != nil {
			return err
		}

		// Re-derive the shared flag from the surviving roster.
		parts, err := s.ListParticipants(ctx, tx.ID)
		if err != nil {
			return err
		}
		_, others := splitRoster(tx, parts)
		if shared := len(others) > 0; shared != tx.IsShared {
			tx.IsShared = shared
			if err := s.UpdateTransaction(ctx, *tx); err != nil {
				return err
			}
		}

		updated = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.flush(ctx, nb)
	return updated, nil
}

// =============================================================================
// DELETE
// =============================================================================

func (e *Engine) DeleteTransaction(ctx context.Context, userID UserID, id TransactionID) error {
	unlock := e.lockTransaction(id)
	defer unlock()

	nb := &notebook{}
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if tx.CreatorID != userID {
			return ErrNotCreator
		}

		parts, err := s.ListParticipants(ctx, id)
		if err != nil {
			return err
		}
		_, others := splitRoster(tx, parts)
		for _, p := range others {
			nb.add(p.UserID, EventShareRemoved,
				"Shared transaction deleted",
				fmt.Sprintf("%q was deleted by its creator", tx.Description),
				map[string]string{"transaction_id": string(tx.ID)})
		}

		children, err := s.ListChildTransactions(ctx, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.DeleteTransaction(ctx, child.ID); err != nil {
				return err
			}
		}

		// DeleteTransaction cascades the participant rows.
		return s.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return err
	}
	e.flush(ctx, nb)
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) GetTransaction(ctx context.Context, id TransactionID) (*TransactionView, error) {
	tx, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	parts, err := e.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TransactionView{Transaction: *tx, Participants: parts}, nil
}

func (e *Engine) ListTransactions(ctx context.Context, creator UserID) ([]Transaction, error) {
	return e.store.ListTransactionsByCreator(ctx, creator)
}

// =============================================================================
// RECURRENCE EXCLUSIONS
// =============================================================================

// ExcludeOccurrence marks one occurrence date of a fixed transaction as
// skipped. Creator-only; idempotent for an already-excluded date.
func (e *Engine) ExcludeOccurrence(ctx context.Context, userID UserID, id TransactionID, date time.Time) error {
	unlock := e.lockTransaction(id)
	defer unlock()

	return e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if tx.CreatorID != userID {
			return ErrNotCreator
		}

		day := date.Truncate(24 * time.Hour)
		for _, d := range tx.ExcludedDates {
			if d.Equal(day) {
				return nil
			}
		}
		tx.ExcludedDates = append(tx.ExcludedDates, day)
		return s.UpdateTransaction(ctx, *tx)
	})
}
