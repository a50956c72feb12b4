package models

import (
	"time"

	"match-escrow-system/escrow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchPool is the persisted escrow record for one match. Deposits are
// embedded as JSON so the row footprint stays bounded by escrow.MaxDeposits.
type MatchPool struct {
	ID                  string           `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID             string           `gorm:"type:varchar(50);uniqueIndex;not null" json:"match_id"`
	Admin               string           `gorm:"type:varchar(128);not null;index" json:"admin"`
	RegistrationEndTime time.Time        `gorm:"not null" json:"registration_end_time"`
	TotalDeposited      uint64           `gorm:"not null;default:0" json:"total_deposited"`
	IsActive            bool             `gorm:"not null" json:"is_active"`
	IsFinalized         bool             `gorm:"not null" json:"is_finalized"`
	Deposits            []escrow.Deposit `gorm:"type:jsonb;serializer:json" json:"deposits"`
	Mint                string           `gorm:"type:varchar(128);not null" json:"mint"`
	PoolAddress         string           `gorm:"type:varchar(128);uniqueIndex;not null" json:"pool_address"`
	FundAccount         string           `gorm:"type:varchar(128);uniqueIndex;not null" json:"fund_account"`

	Timestamps
}

func (m *MatchPool) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// NewMatchPool builds a row from a freshly initialized pool.
func NewMatchPool(p *escrow.Pool) *MatchPool {
	m := &MatchPool{}
	m.Apply(p)
	return m
}

// Domain returns the ledger view of the row.
func (m *MatchPool) Domain() *escrow.Pool {
	deposits := make([]escrow.Deposit, len(m.Deposits))
	copy(deposits, m.Deposits)
	return &escrow.Pool{
		Admin:               m.Admin,
		MatchID:             m.MatchID,
		RegistrationEndTime: m.RegistrationEndTime,
		TotalDeposited:      m.TotalDeposited,
		IsActive:            m.IsActive,
		IsFinalized:         m.IsFinalized,
		Deposits:            deposits,
		Mint:                m.Mint,
		PoolAddress:         m.PoolAddress,
		FundAccount:         m.FundAccount,
	}
}

// Apply copies the ledger state back onto the row.
func (m *MatchPool) Apply(p *escrow.Pool) {
	m.Admin = p.Admin
	m.MatchID = p.MatchID
	m.RegistrationEndTime = p.RegistrationEndTime
	m.TotalDeposited = p.TotalDeposited
	m.IsActive = p.IsActive
	m.IsFinalized = p.IsFinalized
	m.Deposits = append([]escrow.Deposit{}, p.Deposits...)
	m.Mint = p.Mint
	m.PoolAddress = p.PoolAddress
	m.FundAccount = p.FundAccount
}
