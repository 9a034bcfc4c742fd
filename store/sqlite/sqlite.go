/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements settlement.Store and settlement.TxStore using SQLite, plus the
  users table backing settlement.UserDirectory. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  transactions:   Monetary events, including installment children
  participants:   One row per stake, base and effective shares as decimal text
  merge_requests: Placeholder-to-user link requests
  users:          Registered accounts (directory lookups)

MONEY AT REST:
  Amounts and percents are stored as decimal strings, never floats, so a
  round-trip through the database cannot change a share by a sub-cent.

UNIT OF WORK:
  WithTx wraps fn in one BEGIN/COMMIT. The transactional view routes reads
  AND writes through the open sql.Tx, so redistribution observes participant
  rows written earlier in the same unit of work.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/finshare.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := settlement.NewEngine(store, store, notifier)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - settlement/store.go: Interface definitions
  - settlement/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/finshare/settle-engine/settlement"
)

// Store implements settlement.TxStore and settlement.UserDirectory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		tx_type TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_shared INTEGER NOT NULL DEFAULT 0,
		is_fixed INTEGER NOT NULL DEFAULT 0,
		recurrence_ends_at TEXT,
		excluded_dates_json TEXT,
		installment_count INTEGER NOT NULL DEFAULT 0,
		installment_index INTEGER NOT NULL DEFAULT 1,
		parent_id TEXT,
		creator_id TEXT NOT NULL,
		category_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_creator
		ON transactions(creator_id, tx_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_parent
		ON transactions(parent_id) WHERE parent_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		user_id TEXT,
		placeholder_name TEXT,
		share_amount TEXT NOT NULL,
		share_percent TEXT NOT NULL,
		base_share_amount TEXT,
		base_share_percent TEXT,
		status TEXT NOT NULL,
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: redistribution loads the full roster in (seq, id) order.
	CREATE INDEX IF NOT EXISTS idx_participants_transaction
		ON participants(transaction_id, seq, id);
	CREATE INDEX IF NOT EXISTS idx_participants_user
		ON participants(user_id) WHERE user_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_participants_placeholder
		ON participants(placeholder_name) WHERE user_id IS NULL;

	CREATE TABLE IF NOT EXISTS merge_requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		placeholder_name TEXT NOT NULL,
		target_user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_merge_requests_target
		ON merge_requests(target_user_id, status);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the query helpers serve
// the direct path and the unit-of-work path alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, amount, currency, tx_type, tx_date, description,
	is_shared, is_fixed, recurrence_ends_at, excluded_dates_json,
	installment_count, installment_index, parent_id, creator_id, category_id, created_at`

func insertTransaction(ctx context.Context, db dbtx, tx settlement.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.Amount.Value.String(),
		tx.Currency,
		tx.Type,
		tx.Date.UTC().Format(time.RFC3339),
		tx.Description,
		tx.IsShared,
		tx.IsFixed,
		nullTime(tx.RecurrenceEndsAt),
		marshalDates(tx.ExcludedDates),
		tx.InstallmentCount,
		tx.InstallmentIndex,
		nullString(string(tx.ParentID)),
		tx.CreatorID,
		nullString(string(tx.CategoryID)),
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func updateTransaction(ctx context.Context, db dbtx, tx settlement.Transaction) error {
	query := `
		UPDATE transactions SET
			amount = ?, currency = ?, tx_type = ?, tx_date = ?, description = ?,
			is_shared = ?, is_fixed = ?, recurrence_ends_at = ?, excluded_dates_json = ?,
			category_id = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		tx.Amount.Value.String(),
		tx.Currency,
		tx.Type,
		tx.Date.UTC().Format(time.RFC3339),
		tx.Description,
		tx.IsShared,
		tx.IsFixed,
		nullTime(tx.RecurrenceEndsAt),
		marshalDates(tx.ExcludedDates),
		nullString(string(tx.CategoryID)),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrTransactionNotFound
	}
	return nil
}

func getTransaction(ctx context.Context, db dbtx, id settlement.TransactionID) (*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`
	txs, err := queryTransactions(ctx, db, query, id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]settlement.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []settlement.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (settlement.Transaction, error) {
	var (
		tx               settlement.Transaction
		amount           string
		date             string
		recurrenceEndsAt sql.NullString
		excludedJSON     sql.NullString
		parentID         sql.NullString
		categoryID       sql.NullString
		createdAt        string
	)

	err := rows.Scan(
		&tx.ID, &amount, &tx.Currency, &tx.Type, &date, &tx.Description,
		&tx.IsShared, &tx.IsFixed, &recurrenceEndsAt, &excludedJSON,
		&tx.InstallmentCount, &tx.InstallmentIndex, &parentID, &tx.CreatorID,
		&categoryID, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Amount = settlement.MustParseMoney(amount)
	tx.Date, _ = time.Parse(time.RFC3339, date)
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	tx.ParentID = settlement.TransactionID(parentID.String)
	tx.CategoryID = settlement.CategoryID(categoryID.String)
	if recurrenceEndsAt.Valid {
		t, _ := time.Parse(time.RFC3339, recurrenceEndsAt.String)
		tx.RecurrenceEndsAt = &t
	}
	if excludedJSON.Valid && excludedJSON.String != "" {
		tx.ExcludedDates = unmarshalDates(excludedJSON.String)
	}
	return tx, nil
}

// =============================================================================
// PARTICIPANTS
// =============================================================================

const participantColumns = `id, transaction_id, user_id, placeholder_name,
	share_amount, share_percent, base_share_amount, base_share_percent,
	status, seq, created_at`

func insertParticipants(ctx context.Context, db dbtx, ps []settlement.Participant) error {
	query := `
		INSERT INTO participants (` + participantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, p := range ps {
		_, err := db.ExecContext(ctx, query,
			p.ID,
			p.TransactionID,
			nullString(string(p.UserID)),
			nullString(p.PlaceholderName),
			p.ShareAmount.Value.String(),
			p.SharePercent.String(),
			nullMoney(p.BaseShareAmount),
			nullDecimal(p.BaseSharePercent),
			p.Status,
			p.Seq,
			p.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}

func updateParticipant(ctx context.Context, db dbtx, p settlement.Participant) error {
	query := `
		UPDATE participants SET
			user_id = ?, placeholder_name = ?, share_amount = ?, share_percent = ?,
			base_share_amount = ?, base_share_percent = ?, status = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		nullString(string(p.UserID)),
		nullString(p.PlaceholderName),
		p.ShareAmount.Value.String(),
		p.SharePercent.String(),
		nullMoney(p.BaseShareAmount),
		nullDecimal(p.BaseSharePercent),
		p.Status,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrParticipantNotFound
	}
	return nil
}

func listParticipants(ctx context.Context, db dbtx, tx settlement.TransactionID) ([]settlement.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE transaction_id = ?
		ORDER BY seq ASC, id ASC
	`
	return queryParticipants(ctx, db, query, tx)
}

func findPlaceholderParticipants(ctx context.Context, db dbtx, creator settlement.UserID, name string) ([]settlement.Participant, error) {
	query := `
		SELECT ` + qualify(participantColumns, "p") + `
		FROM participants p
		JOIN transactions t ON t.id = p.transaction_id
		WHERE p.user_id IS NULL AND p.placeholder_name = ? AND t.creator_id = ?
		ORDER BY p.id ASC
	`
	return queryParticipants(ctx, db, query, name, creator)
}

func queryParticipants(ctx context.Context, db dbtx, query string, args ...any) ([]settlement.Participant, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var out []settlement.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParticipant(rows *sql.Rows) (settlement.Participant, error) {
	var (
		p           settlement.Participant
		userID      sql.NullString
		placeholder sql.NullString
		share       string
		percent     string
		baseShare   sql.NullString
		basePercent sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&p.ID, &p.TransactionID, &userID, &placeholder,
		&share, &percent, &baseShare, &basePercent,
		&p.Status, &p.Seq, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan participant: %w", err)
	}

	p.UserID = settlement.UserID(userID.String)
	p.PlaceholderName = placeholder.String
	p.ShareAmount = settlement.MustParseMoney(share)
	p.SharePercent = mustParseDecimal(percent)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if baseShare.Valid {
		m := settlement.MustParseMoney(baseShare.String)
		p.BaseShareAmount = &m
	}
	if basePercent.Valid {
		d := mustParseDecimal(basePercent.String)
		p.BaseSharePercent = &d
	}
	return p, nil
}

// =============================================================================
// MERGE REQUESTS
// =============================================================================

func insertMergeRequest(ctx context.Context, db dbtx, m settlement.MergeRequest) error {
	query := `
		INSERT INTO merge_requests
		(id, requester_id, placeholder_name, target_user_id, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		m.ID, m.RequesterID, m.PlaceholderName, m.TargetUserID, m.Status,
		m.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(m.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert merge request: %w", err)
	}
	return nil
}

func getMergeRequest(ctx context.Context, db dbtx, id settlement.MergeRequestID) (*settlement.MergeRequest, error) {
	var (
		m          settlement.MergeRequest
		createdAt  string
		resolvedAt sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, requester_id, placeholder_name, target_user_id, status, created_at, resolved_at
		 FROM merge_requests WHERE id = ?`, id,
	).Scan(&m.ID, &m.RequesterID, &m.PlaceholderName, &m.TargetUserID, &m.Status, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query merge request: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		m.ResolvedAt = &t
	}
	return &m, nil
}

func updateMergeRequest(ctx context.Context, db dbtx, m settlement.MergeRequest) error {
	res, err := db.ExecContext(ctx,
		`UPDATE merge_requests SET status = ?, resolved_at = ? WHERE id = ?`,
		m.Status, nullTime(m.ResolvedAt), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update merge request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrMergeRequestNotFound
	}
	return nil
}

// =============================================================================
// settlement.Store (direct path)
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx settlement.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id settlement.TransactionID) (*settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx settlement.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransaction(ctx, s.db, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, id settlement.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Participant rows go with it via ON DELETE CASCADE.
	_, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	return err
}

func (s *Store) ListTransactionsByCreator(ctx context.Context, creator settlement.UserID) ([]settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE creator_id = ? ORDER BY tx_date ASC, id ASC`
	return queryTransactions(ctx, s.db, query, creator)
}

func (s *Store) ListChildTransactions(ctx context.Context, parent settlement.TransactionID) ([]settlement.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE parent_id = ? ORDER BY installment_index ASC`
	return queryTransactions(ctx, s.db, query, parent)
}

func (s *Store) InsertParticipants(ctx context.Context, ps []settlement.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertParticipants(ctx, s.db, ps)
}

func (s *Store) UpdateParticipant(ctx context.Context, p settlement.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateParticipant(ctx, s.db, p)
}

func (s *Store) DeleteParticipant(ctx context.Context, id settlement.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM participants WHERE id = ?", id)
	return err
}

func (s *Store) ListParticipants(ctx context.Context, tx settlement.TransactionID) ([]settlement.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listParticipants(ctx, s.db, tx)
}

func (s *Store) FindPlaceholderParticipants(ctx context.Context, creator settlement.UserID, name string) ([]settlement.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPlaceholderParticipants(ctx, s.db, creator, name)
}

func (s *Store) InsertMergeRequest(ctx context.Context, m settlement.MergeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMergeRequest(ctx, s.db, m)
}

func (s *Store) GetMergeRequest(ctx context.Context, id settlement.MergeRequestID) (*settlement.MergeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMergeRequest(ctx, s.db, id)
}

func (s *Store) UpdateMergeRequest(ctx context.Context, m settlement.MergeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMergeRequest(ctx, s.db, m)
}

// =============================================================================
// settlement.TxStore
// =============================================================================

// WithTx executes fn within one database transaction. Any error from fn
// rolls back everything fn wrote, including the transaction row itself.
func (s *Store) WithTx(ctx context.Context, fn func(settlement.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx settlement.Transaction) error {
	return insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) GetTransaction(ctx context.Context, id settlement.TransactionID) (*settlement.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) UpdateTransaction(ctx context.Context, tx settlement.Transaction) error {
	return updateTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id settlement.TransactionID) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	return err
}

func (ts *txStore) ListTransactionsByCreator(ctx context.Context, creator settlement.UserID) ([]settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE creator_id = ? ORDER BY tx_date ASC, id ASC`
	return queryTransactions(ctx, ts.tx, query, creator)
}

func (ts *txStore) ListChildTransactions(ctx context.Context, parent settlement.TransactionID) ([]settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE parent_id = ? ORDER BY installment_index ASC`
	return queryTransactions(ctx, ts.tx, query, parent)
}

func (ts *txStore) InsertParticipants(ctx context.Context, ps []settlement.Participant) error {
	return insertParticipants(ctx, ts.tx, ps)
}

func (ts *txStore) UpdateParticipant(ctx context.Context, p settlement.Participant) error {
	return updateParticipant(ctx, ts.tx, p)
}

func (ts *txStore) DeleteParticipant(ctx context.Context, id settlement.ParticipantID) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM participants WHERE id = ?", id)
	return err
}

func (ts *txStore) ListParticipants(ctx context.Context, tx settlement.TransactionID) ([]settlement.Participant, error) {
	return listParticipants(ctx, ts.tx, tx)
}

func (ts *txStore) FindPlaceholderParticipants(ctx context.Context, creator settlement.UserID, name string) ([]settlement.Participant, error) {
	return findPlaceholderParticipants(ctx, ts.tx, creator, name)
}

func (ts *txStore) InsertMergeRequest(ctx context.Context, m settlement.MergeRequest) error {
	return insertMergeRequest(ctx, ts.tx, m)
}

func (ts *txStore) GetMergeRequest(ctx context.Context, id settlement.MergeRequestID) (*settlement.MergeRequest, error) {
	return getMergeRequest(ctx, ts.tx, id)
}

func (ts *txStore) UpdateMergeRequest(ctx context.Context, m settlement.MergeRequest) error {
	return updateMergeRequest(ctx, ts.tx, m)
}

// =============================================================================
// USERS
// =============================================================================

// User is a registered account.
type User struct {
	ID        settlement.UserID `json:"id"`
	Username  string            `json:"username"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"createdAt"`
}

// LookupByUsername implements settlement.UserDirectory.
func (s *Store) LookupByUsername(ctx context.Context, username string) (settlement.UserID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id settlement.UserID
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE username = ?", username,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query user: %w", err)
	}
	return id, true, nil
}

// SaveUser inserts or updates an account.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, username, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Username, u.Name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves an account by id. Returns nil if not found.
func (s *Store) GetUser(ctx context.Context, id settlement.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, name, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Username, &u.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// ListUsers returns all accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, name, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullMoney(m *settlement.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Value.String(), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func marshalDates(dates []time.Time) sql.NullString {
	if len(dates) == 0 {
		return sql.NullString{}
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = d.Format("2006-01-02")
	}
	b, _ := json.Marshal(keys)
	return sql.NullString{String: string(b), Valid: true}
}

func unmarshalDates(raw string) []time.Time {
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil
	}
	var out []time.Time
	for _, k := range keys {
		t, err := time.Parse("2006-01-02", k)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// qualify prefixes each column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
