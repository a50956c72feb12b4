package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DepositReceipt is written in the same transaction as the ledger credit.
// A deposit retried with the same request id finds it and is not credited
// twice.
type DepositReceipt struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID        string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_deposit_request" json:"match_id"`
	RequestID      string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_deposit_request" json:"request_id"`
	UserID         string    `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Amount         uint64    `gorm:"not null" json:"amount"`
	FundingAccount string    `gorm:"type:varchar(128);not null" json:"funding_account"`
	TransferRef    string    `gorm:"type:varchar(128)" json:"transfer_ref"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *DepositReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
