/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the settlement engine and everything it does
  not own: the persistent store, the user directory, and the notification
  sink. The engine depends only on these interfaces, so storage engines and
  delivery channels are swappable and tests run against in-memory doubles.

UNIT OF WORK:
  TxStore.WithTx is the single way to make the engine's multi-step mutations
  atomic. Every lifecycle operation opens exactly one unit of work and
  threads the transactional Store through all reads and writes, so a
  share-cap violation discovered midway rolls back the transaction row too.
  There is no silent non-atomic fallback.

IMPLEMENTATIONS:
  - store/memory.go: In-memory, for tests and dev
  - store/sqlite:    Production SQLite

SEE ALSO:
  - lifecycle.go: Opens units of work
  - ledger.go: Runs inside them
*/
package settlement

import "context"

// =============================================================================
// STORE - Transactional CRUD over the settlement entities
// =============================================================================

type Store interface {
	// Transactions
	InsertTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction) error
	DeleteTransaction(ctx context.Context, id TransactionID) error
	ListTransactionsByCreator(ctx context.Context, creator UserID) ([]Transaction, error)
	ListChildTransactions(ctx context.Context, parent TransactionID) ([]Transaction, error)

	// Participants. InsertParticipants is a batch write; ListParticipants
	// returns rows in stable (seq, id) order, redistribution depends on it.
	InsertParticipants(ctx context.Context, ps []Participant) error
	UpdateParticipant(ctx context.Context, p Participant) error
	DeleteParticipant(ctx context.Context, id ParticipantID) error
	ListParticipants(ctx context.Context, tx TransactionID) ([]Participant, error)

	// FindPlaceholderParticipants returns every placeholder row named name
	// on transactions created by creator. Used by merge acceptance.
	FindPlaceholderParticipants(ctx context.Context, creator UserID, name string) ([]Participant, error)

	// Merge requests
	InsertMergeRequest(ctx context.Context, m MergeRequest) error
	GetMergeRequest(ctx context.Context, id MergeRequestID) (*MergeRequest, error)
	UpdateMergeRequest(ctx context.Context, m MergeRequest) error
}

// TxStore wraps Store with unit-of-work support.
type TxStore interface {
	Store

	// WithTx executes fn within one atomic unit of work.
	// If fn returns an error, every write inside it is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// UserDirectory resolves usernames to registered users.
// Implementations live outside the engine (account service, users table).
type UserDirectory interface {
	// LookupByUsername returns the user's id and true when the username is
	// registered, or false when it is unknown (participant becomes a
	// placeholder).
	LookupByUsername(ctx context.Context, username string) (UserID, bool, error)
}

// Notifier delivers notifications the engine decided to emit. Delivery is
// fire-and-forget: the engine never fails a mutation because delivery did.
// Notifications are flushed only after the unit of work commits.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}
