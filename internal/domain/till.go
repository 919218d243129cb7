package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashSession mirrors the authoritative remote record. It is never persisted
// locally; every read replaces the whole struct, never individual fields.
type CashSession struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	PosID          string          `json:"pos_id"`
	OperatorID     string          `json:"operator_id"`
	OperatorName   string          `json:"operator_name"`
	OpeningAmount  decimal.Decimal `json:"opening_amount"`
	ClosingAmount  decimal.Decimal `json:"closing_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	SalesCount     int             `json:"sales_count"`
	MovementsCount int             `json:"movements_count"`
	OpenedAt       time.Time       `json:"opened_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

const (
	SessionOpen        = "OPEN"
	SessionSuspended   = "SUSPENDED"
	SessionCounting    = "COUNTING"
	SessionClosed      = "CLOSED"
	SessionTransferred = "TRANSFERRED"
)

const (
	MovementDeposit    = "deposit"
	MovementWithdrawal = "withdrawal"
)
