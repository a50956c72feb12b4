package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettlementCommit is written for every snapshot pushed back to the
// authoritative context.
type SettlementCommit struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID        string    `gorm:"type:varchar(50);not null;index" json:"match_id"`
	AccountKind    string    `gorm:"type:varchar(32);not null" json:"account_kind"`
	AccountAddress string    `gorm:"type:varchar(128);not null;index" json:"account_address"`
	Digest         string    `gorm:"type:varchar(64);not null" json:"digest"`
	Undelegated    bool      `gorm:"not null" json:"undelegated"`
	ArchiveURL     string    `gorm:"type:text" json:"archive_url,omitempty"`
	CommittedAt    time.Time `gorm:"not null" json:"committed_at"`
}

func (c *SettlementCommit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
