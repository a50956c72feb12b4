package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutPaid    PayoutStatus = "paid"
	PayoutSkipped PayoutStatus = "skipped"
)

// PrizePayout is the audit row for one entry of a prize distribution, so a
// partially distributed match can be told apart from a fully distributed one.
type PrizePayout struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID     string       `gorm:"type:varchar(50);not null;index" json:"match_id"`
	Position    int          `gorm:"not null" json:"position"` // index in the submitted prize list
	UserID      string       `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Amount      uint64       `gorm:"not null" json:"amount"`
	Destination string       `gorm:"type:varchar(128)" json:"destination,omitempty"`
	Status      PayoutStatus `gorm:"type:varchar(16);not null" json:"status"`
	SkipReason  string       `gorm:"type:varchar(64)" json:"skip_reason,omitempty"`
	TransferRef string       `gorm:"type:varchar(128)" json:"transfer_ref,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (p *PrizePayout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
