/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Amounts and percents travel as decimal strings ("120.50", "33.33"),
  never floats, so a client round-trip cannot perturb a share.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/types.go: Internal domain model
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshare/settle-engine/settlement"
)

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionDTO struct {
	ID               string   `json:"id"`
	Amount           string   `json:"amount"`
	Currency         string   `json:"currency,omitempty"`
	Type             string   `json:"type"`
	Date             string   `json:"date"`
	Description      string   `json:"description,omitempty"`
	IsShared         bool     `json:"isShared"`
	IsFixed          bool     `json:"isFixed"`
	RecurrenceEndsAt *string  `json:"recurrenceEndsAt,omitempty"`
	ExcludedDates    []string `json:"excludedDates,omitempty"`
	InstallmentCount int      `json:"installmentCount,omitempty"`
	InstallmentIndex int      `json:"installmentIndex,omitempty"`
	ParentID         string   `json:"parentId,omitempty"`
	CreatorID        string   `json:"creatorId"`
	CategoryID       string   `json:"categoryId,omitempty"`
	CreatedAt        string   `json:"createdAt"`
}

type ParticipantDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId,omitempty"`
	PlaceholderName string  `json:"placeholderName,omitempty"`
	ShareAmount     string  `json:"shareAmount"`
	SharePercent    string  `json:"sharePercent"`
	BaseAmount      *string `json:"baseAmount,omitempty"`
	BasePercent     *string `json:"basePercent,omitempty"`
	Status          string  `json:"status"`
}

type TransactionViewDTO struct {
	TransactionDTO
	Participants []ParticipantDTO `json:"participants"`
}

type ShareRequestDTO struct {
	ParticipantID   string  `json:"participantId,omitempty"`
	UserID          string  `json:"userId,omitempty"`
	Username        string  `json:"username,omitempty"`
	PlaceholderName string  `json:"placeholderName,omitempty"`
	Amount          *string `json:"amount,omitempty"`
	Percent         *string `json:"percent,omitempty"`
}

type CreateTransactionDTO struct {
	Amount           string            `json:"amount"`
	Currency         string            `json:"currency,omitempty"`
	Type             string            `json:"type"`
	Date             string            `json:"date"`
	Description      string            `json:"description,omitempty"`
	CategoryID       string            `json:"categoryId,omitempty"`
	IsFixed          bool              `json:"isFixed,omitempty"`
	RecurrenceEndsAt *string           `json:"recurrenceEndsAt,omitempty"`
	InstallmentCount int               `json:"installmentCount,omitempty"`
	Participants     []ShareRequestDTO `json:"participants,omitempty"`
}

// UpdateTransactionDTO carries only the fields the caller wants changed.
// Omitting participants leaves the roster untouched; an empty array removes
// every non-creator participant.
type UpdateTransactionDTO struct {
	Amount       *string            `json:"amount,omitempty"`
	Date         *string            `json:"date,omitempty"`
	Description  *string            `json:"description,omitempty"`
	CategoryID   *string            `json:"categoryId,omitempty"`
	Participants *[]ShareRequestDTO `json:"participants,omitempty"`
}

type RespondDTO struct {
	Status string `json:"status"`
}

type ExcludeOccurrenceDTO struct {
	Date string `json:"date"`
}

type OccurrencesDTO struct {
	TransactionID string   `json:"transactionId"`
	Dates         []string `json:"dates"`
}

// =============================================================================
// MERGE REQUESTS
// =============================================================================

type MergeRequestDTO struct {
	ID              string  `json:"id"`
	RequesterID     string  `json:"requesterId"`
	PlaceholderName string  `json:"placeholderName"`
	TargetUserID    string  `json:"targetUserId"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"createdAt"`
	ResolvedAt      *string `json:"resolvedAt,omitempty"`
}

type CreateMergeRequestDTO struct {
	PlaceholderName string `json:"placeholderName"`
	TargetUserID    string `json:"targetUserId"`
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type CreateUserDTO struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTransactionDTO(tx settlement.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:               string(tx.ID),
		Amount:           tx.Amount.String(),
		Currency:         tx.Currency,
		Type:             string(tx.Type),
		Date:             tx.Date.Format("2006-01-02"),
		Description:      tx.Description,
		IsShared:         tx.IsShared,
		IsFixed:          tx.IsFixed,
		InstallmentCount: tx.InstallmentCount,
		InstallmentIndex: tx.InstallmentIndex,
		ParentID:         string(tx.ParentID),
		CreatorID:        string(tx.CreatorID),
		CategoryID:       string(tx.CategoryID),
		CreatedAt:        tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.RecurrenceEndsAt != nil {
		s := tx.RecurrenceEndsAt.Format("2006-01-02")
		dto.RecurrenceEndsAt = &s
	}
	for _, d := range tx.ExcludedDates {
		dto.ExcludedDates = append(dto.ExcludedDates, d.Format("2006-01-02"))
	}
	return dto
}

func toParticipantDTO(p settlement.Participant) ParticipantDTO {
	dto := ParticipantDTO{
		ID:              string(p.ID),
		UserID:          string(p.UserID),
		PlaceholderName: p.PlaceholderName,
		ShareAmount:     p.ShareAmount.String(),
		SharePercent:    p.SharePercent.StringFixed(2),
		Status:          string(p.Status),
	}
	if p.BaseShareAmount != nil {
		s := p.BaseShareAmount.String()
		dto.BaseAmount = &s
	}
	if p.BaseSharePercent != nil {
		s := p.BaseSharePercent.StringFixed(2)
		dto.BasePercent = &s
	}
	return dto
}

func toMergeRequestDTO(m settlement.MergeRequest) MergeRequestDTO {
	dto := MergeRequestDTO{
		ID:              string(m.ID),
		RequesterID:     string(m.RequesterID),
		PlaceholderName: m.PlaceholderName,
		TargetUserID:    string(m.TargetUserID),
		Status:          string(m.Status),
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
	if m.ResolvedAt != nil {
		s := m.ResolvedAt.Format(time.RFC3339)
		dto.ResolvedAt = &s
	}
	return dto
}

func parseShareRequests(dtos []ShareRequestDTO) ([]settlement.ShareRequest, error) {
	reqs := make([]settlement.ShareRequest, 0, len(dtos))
	for i, d := range dtos {
		req := settlement.ShareRequest{
			ParticipantID:   settlement.ParticipantID(d.ParticipantID),
			UserID:          settlement.UserID(d.UserID),
			Username:        d.Username,
			PlaceholderName: d.PlaceholderName,
		}
		if d.Amount != nil {
			v, err := decimal.NewFromString(*d.Amount)
			if err != nil {
				return nil, fmt.Errorf("participant %d: bad amount %q", i, *d.Amount)
			}
			m := settlement.MoneyFromDecimal(v)
			req.Amount = &m
		}
		if d.Percent != nil {
			v, err := decimal.NewFromString(*d.Percent)
			if err != nil {
				return nil, fmt.Errorf("participant %d: bad percent %q", i, *d.Percent)
			}
			req.Percent = &v
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parseMoney(s string) (settlement.Money, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return settlement.Money{}, fmt.Errorf("bad amount %q", s)
	}
	return settlement.MoneyFromDecimal(v), nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
