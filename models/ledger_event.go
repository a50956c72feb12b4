package models

import (
	"time"

	"match-escrow-system/escrow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerEvent is a persisted notification, streamed to clients over SSE.
type LedgerEvent struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID        string    `gorm:"type:varchar(50);not null;index" json:"match_id"`
	Kind           string    `gorm:"type:varchar(32);not null;index" json:"kind"`
	UserID         string    `gorm:"type:varchar(128);index" json:"user_id,omitempty"`
	Amount         uint64    `json:"amount"`
	TotalDeposited uint64    `json:"total_deposited"`
	Account        string    `gorm:"type:varchar(128)" json:"account,omitempty"`
	Detail         string    `gorm:"type:text" json:"detail,omitempty"`
	OccurredAt     time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func NewLedgerEvent(ev escrow.Event) LedgerEvent {
	return LedgerEvent{
		MatchID:        ev.MatchID,
		Kind:           string(ev.Kind),
		UserID:         ev.User,
		Amount:         ev.Amount,
		TotalDeposited: ev.TotalDeposited,
		Account:        ev.Account,
		Detail:         ev.Detail,
		OccurredAt:     ev.At,
	}
}
