/*
engine.go - Engine wiring, per-transaction serialization, notification buffer

PURPOSE:
  The Engine bundles the store, the user directory, the notifier, and an
  injectable logger, and serializes mutations per transaction id.

SERIALIZATION:
  Two concurrent requests touching the same transaction's participant set
  (one user accepting while the creator edits the amount) could otherwise
  interleave reads and writes and break the sum-of-shares invariant. The
  engine takes a keyed mutex on the transaction id around every mutating
  operation, on top of the store-level unit of work.

NOTIFICATIONS:
  Mutations record notification decisions into a buffer while the unit of
  work is open; the buffer is flushed to the Notifier only after commit, so
  a rolled-back mutation never notifies anyone.
*/
package settlement

import (
	"context"
	"log/slog"
	"sync"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store    TxStore
	users    UserDirectory
	notifier Notifier
	log      *slog.Logger

	// Keyed mutexes, one per transaction id. Entries are never reclaimed;
	// the table grows with the set of transactions mutated by this process.
	locks sync.Map
}

type Option func(*Engine)

// WithLogger replaces the default slog logger. Tests inject a quiet one.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(store TxStore, users UserDirectory, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		users:    users,
		notifier: notifier,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying store for read-only callers (API listings).
func (e *Engine) Store() TxStore { return e.store }

// lockTransaction serializes mutations on one transaction id.
// The returned func releases the lock.
func (e *Engine) lockTransaction(id TransactionID) func() {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// =============================================================================
// NOTIFICATION BUFFER
// =============================================================================

// notebook accumulates notification decisions inside a unit of work.
type notebook struct {
	notes []Notification
}

func (nb *notebook) add(userID UserID, event NotificationEvent, title, message string, payload map[string]string) {
	if userID == "" {
		return // placeholders have nobody to notify
	}
	nb.notes = append(nb.notes, Notification{
		UserID:  userID,
		Event:   event,
		Title:   title,
		Message: message,
		Payload: payload,
	})
}

// flush delivers the buffered notifications. Called after commit only.
func (e *Engine) flush(ctx context.Context, nb *notebook) {
	for _, n := range nb.notes {
		e.notifier.Notify(ctx, n)
	}
}
