/*
Package settlement provides the shared-transaction settlement engine.

PURPOSE:
  This package contains the core logic for splitting a monetary transaction
  among participants and keeping every participant's effective share
  consistent as people are invited, accept, reject, or leave. It is the
  authoritative source for three invariants:

  1. The sum of effective shares always equals the transaction amount while
     at least one participant is accepted.
  2. Non-accepted participants always carry a zero effective share, but their
     nominal ("base") share is preserved for reinstatement.
  3. A transaction is shared exactly while it has non-creator participants.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point monetary value backed by decimal.Decimal
  - Transaction: A monetary event owned by a creator
  - Participant: One party's stake in a transaction (base vs effective share)
  - MergeRequest: A pending link between a placeholder name and a real user
  - Notification: A delivery-agnostic message the engine decides to emit

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64, internally
  2. Base vs effective: the nominal share survives status transitions
  3. Determinism: participants carry a creation sequence so redistribution
     is stable across repeated runs

SEE ALSO:
  - split.go: Pure share computation
  - redistribute.go: Re-normalization over the active participant set
  - ledger.go: Participant mutations and notification decisions
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point monetary value
// =============================================================================

// Money is a monetary value with two-decimal precision at rest.
// Arithmetic runs at full decimal precision; call Round2 before persisting.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(v float64) Money                 { return Money{Value: decimal.NewFromFloat(v)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }
func MoneyFromCents(cents int64) Money         { return Money{Value: decimal.New(cents, -2)} }

// MustParseMoney parses a decimal string, returning zero on malformed input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg()} }
func (m Money) Round2() Money               { return Money{Value: m.Value.Round(2)} }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool          { return m.Value.Equal(b.Value) }
func (m Money) String() string              { return m.Value.StringFixed(2) }
func (m Money) Float64() float64            { return m.Value.InexactFloat64() }

// Cents returns the value as integer cents. Used by the equal-split fallback.
func (m Money) Cents() int64 { return m.Value.Shift(2).Round(0).IntPart() }

// WithinTolerance reports whether m and b differ by at most tol.
func (m Money) WithinTolerance(b Money, tol decimal.Decimal) bool {
	return m.Value.Sub(b.Value).Abs().LessThanOrEqual(tol)
}

var (
	// ShareTolerance is the named "effectively equal" tolerance for comparing
	// client-submitted share values against stored ones.
	ShareTolerance = decimal.NewFromFloat(0.001)

	// SumTolerance bounds the acceptable rounding drift when cross-checking
	// that participant shares reconcile against a transaction total.
	SumTolerance = decimal.NewFromFloat(0.01)

	hundred = decimal.NewFromInt(100)
)

// PercentOf returns share/total*100 rounded to two decimals.
// Returns zero when total is zero.
func PercentOf(share, total Money) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return share.Value.Div(total.Value).Mul(hundred).Round(2)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string
type ParticipantID string
type UserID string
type CategoryID string
type MergeRequestID string

// =============================================================================
// TRANSACTION - Monetary event
// =============================================================================

type TransactionType string

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

type Transaction struct {
	ID          TransactionID
	Amount      Money
	Currency    string
	Type        TransactionType
	Date        time.Time
	Description string

	// IsShared is derived: true exactly while non-creator participants exist.
	// Demotion to false only happens through the explicit all-rejected rule,
	// never implicitly on read.
	IsShared bool

	// Recurrence. A fixed transaction repeats monthly until RecurrenceEndsAt
	// (nil means open-ended); ExcludedDates are skipped occurrences.
	IsFixed          bool
	RecurrenceEndsAt *time.Time
	ExcludedDates    []time.Time

	// Installments. A transaction bought in N installments owns N child rows;
	// children reference the original through ParentID.
	InstallmentCount int
	InstallmentIndex int
	ParentID         TransactionID

	CreatorID  UserID
	CategoryID CategoryID
	CreatedAt  time.Time
}

// =============================================================================
// PARTICIPANT - A stake in a transaction
// =============================================================================

type ParticipantStatus string

const (
	StatusPending  ParticipantStatus = "PENDING"
	StatusAccepted ParticipantStatus = "ACCEPTED"
	StatusRejected ParticipantStatus = "REJECTED"
	StatusExited   ParticipantStatus = "EXITED"
)

// ValidResponse reports whether s is a status a participant may respond with.
func ValidResponse(s ParticipantStatus) bool {
	return s == StatusAccepted || s == StatusRejected
}

type Participant struct {
	ID            ParticipantID
	TransactionID TransactionID

	// UserID is empty for an unregistered placeholder; PlaceholderName is set
	// exactly in that case.
	UserID          UserID
	PlaceholderName string

	// Effective share: zero whenever the participant is not accepted.
	ShareAmount  Money
	SharePercent decimal.Decimal

	// Nominal share, as last explicitly set. Never cleared once populated;
	// nil only for rows predating the base/effective split.
	BaseShareAmount  *Money
	BaseSharePercent *decimal.Decimal

	Status ParticipantStatus

	// Seq is the creation order within the transaction. Redistribution
	// iterates in (Seq, ID) order so remainder absorption is deterministic.
	Seq       int64
	CreatedAt time.Time
}

// IsPlaceholder reports whether the participant is an unregistered party.
func (p *Participant) IsPlaceholder() bool { return p.UserID == "" }

// IsCreator reports whether the participant is the owning row of tx.
func (p *Participant) IsCreator(tx *Transaction) bool {
	return p.UserID != "" && p.UserID == tx.CreatorID
}

// SetBase records the nominal share. The effective share is left alone;
// redistribution owns it.
func (p *Participant) SetBase(amount Money, percent decimal.Decimal) {
	a := amount.Round2()
	pc := percent.Round(2)
	p.BaseShareAmount = &a
	p.BaseSharePercent = &pc
}

// BaseAmountOrEffective returns the nominal amount, falling back to the
// effective share for legacy rows that never had a base recorded.
func (p *Participant) BaseAmountOrEffective() Money {
	if p.BaseShareAmount != nil {
		return *p.BaseShareAmount
	}
	return p.ShareAmount
}

// =============================================================================
// SHARE REQUEST - Caller input for create/update
// =============================================================================

// ShareRequest describes one requested participant. Exactly one of UserID,
// Username, or PlaceholderName identifies the party; Amount and Percent are
// both optional (one derives the other).
type ShareRequest struct {
	ParticipantID   ParticipantID // set on update to match an existing row
	UserID          UserID
	Username        string
	PlaceholderName string
	Amount          *Money
	Percent         *decimal.Decimal
}

// HasCustomSplit reports whether the request carries an explicit share.
func (r ShareRequest) HasCustomSplit() bool { return r.Amount != nil || r.Percent != nil }

// =============================================================================
// MERGE REQUEST - Placeholder-to-user link
// =============================================================================

type MergeStatus string

const (
	MergePending  MergeStatus = "PENDING"
	MergeAccepted MergeStatus = "ACCEPTED"
	MergeRejected MergeStatus = "REJECTED"
)

type MergeRequest struct {
	ID              MergeRequestID
	RequesterID     UserID
	PlaceholderName string
	TargetUserID    UserID
	Status          MergeStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// =============================================================================
// NOTIFICATION - Decision of what to deliver, not how
// =============================================================================

type NotificationEvent string

const (
	EventShareInvitation NotificationEvent = "share_invitation"
	EventShareRemoved    NotificationEvent = "share_removed"
	EventShareResponse   NotificationEvent = "share_response"
	EventShareReview     NotificationEvent = "share_review"
	EventShareReverted   NotificationEvent = "share_reverted"
	EventMergeRequested  NotificationEvent = "merge_requested"
	EventMergeResolved   NotificationEvent = "merge_resolved"
	EventRecurrenceDue   NotificationEvent = "recurrence_due"
)

type Notification struct {
	UserID  UserID
	Event   NotificationEvent
	Title   string
	Message string
	Payload map[string]string
}
