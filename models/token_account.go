// models/token_account.go
package models

import (
	"errors"
	"time"

	"match-escrow-system/escrow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenAccount mirrors token account data from the sync service.
// Table name: token_accounts
type TokenAccount struct {
	ID                 string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Owner              string    `gorm:"type:varchar(128);not null;index" json:"owner"` // participant identity
	Mint               string    `gorm:"type:varchar(128);not null;index" json:"mint"`
	Address            string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"` // Primary lookup key
	IsActive           bool      `gorm:"not null" json:"is_active"`
	LastBalanceCheckAt time.Time `gorm:"not null" json:"last_balance_check_at"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *TokenAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Destination converts the mirror row into a prize destination candidate.
func (a TokenAccount) Destination() escrow.DestinationAccount {
	return escrow.DestinationAccount{Address: a.Address, Owner: a.Owner, Mint: a.Mint}
}

// GetTokenAccountByAddress reads one mirrored account. A missing row is
// reported through ok, not as an error.
func GetTokenAccountByAddress(db *gorm.DB, address string) (acct TokenAccount, ok bool, err error) {
	if err = db.Where("address = ?", address).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return acct, false, nil
		}
		return acct, false, err
	}
	return acct, true, nil
}
