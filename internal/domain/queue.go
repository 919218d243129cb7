package domain

import "time"

// OfflineOperation is a durably queued write that could not reach the remote
// system at submission time. Transitions: pending/failed -> processing ->
// completed | failed. A completed operation, or a failed one with retries
// exhausted, is terminal and excluded from replay but kept visible for
// manual intervention.
type OfflineOperation struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	TenantID      string     `gorm:"index;size:64" json:"tenant_id"`
	Type          string     `gorm:"size:32;index" json:"type"`
	Endpoint      string     `gorm:"size:255" json:"endpoint"`
	Method        string     `gorm:"size:8" json:"method"`
	Payload       []byte     `json:"-"`
	Sealed        bool       `json:"sealed"`
	Status        string     `gorm:"size:16;index" json:"status"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"not null;default:5" json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LocalRef      string     `gorm:"size:64;index" json:"local_ref,omitempty"`
	Response      []byte     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (o OfflineOperation) CanRetry() bool {
	if o.Status != OpStatusPending && o.Status != OpStatusFailed {
		return false
	}
	return o.RetryCount < o.MaxRetries
}

const (
	OpStatusPending    = "pending"
	OpStatusProcessing = "processing"
	OpStatusCompleted  = "completed"
	OpStatusFailed     = "failed"
)

const (
	OpTypeSale         = "sale"
	OpTypePayment      = "payment"
	OpTypeCashMovement = "cash_movement"
)
