package models

import (
	"time"

	"match-escrow-system/escrow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Delegation records which execution context holds mutation authority over
// one of a match's accounts.
type Delegation struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID           string     `gorm:"type:varchar(50);not null;index" json:"match_id"`
	AccountKind       string     `gorm:"type:varchar(32);not null" json:"account_kind"`
	AccountAddress    string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"account_address"`
	Owner             string     `gorm:"type:varchar(128);not null" json:"owner"`
	Ownership         string     `gorm:"type:varchar(16);not null;default:'owned'" json:"ownership"` // owned | delegated
	CommitFrequencyMs int64      `gorm:"not null;default:0" json:"commit_frequency_ms"`
	DelegatedAt       *time.Time `json:"delegated_at,omitempty"`
	LastCommittedAt   *time.Time `json:"last_committed_at,omitempty"`
	LastCheckedAt     *time.Time `json:"last_checked_at,omitempty"`
	LastCommitDigest  string     `gorm:"type:varchar(64)" json:"last_commit_digest,omitempty"`

	Timestamps
}

func (d *Delegation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (d *Delegation) Domain() *escrow.Delegation {
	out := &escrow.Delegation{
		Kind:             escrow.AccountKind(d.AccountKind),
		Address:          d.AccountAddress,
		Owner:            d.Owner,
		Ownership:        escrow.Ownership(d.Ownership),
		CommitFrequency:  time.Duration(d.CommitFrequencyMs) * time.Millisecond,
		LastCommitDigest: d.LastCommitDigest,
	}
	if d.DelegatedAt != nil {
		out.DelegatedAt = *d.DelegatedAt
	}
	if d.LastCommittedAt != nil {
		out.LastCommittedAt = *d.LastCommittedAt
	}
	if d.LastCheckedAt != nil {
		out.LastCheckedAt = *d.LastCheckedAt
	}
	return out
}

func (d *Delegation) Apply(in *escrow.Delegation) {
	d.AccountKind = string(in.Kind)
	d.AccountAddress = in.Address
	d.Owner = in.Owner
	d.Ownership = string(in.Ownership)
	d.CommitFrequencyMs = in.CommitFrequency.Milliseconds()
	d.LastCommitDigest = in.LastCommitDigest
	d.DelegatedAt = timePtr(in.DelegatedAt)
	d.LastCommittedAt = timePtr(in.LastCommittedAt)
	d.LastCheckedAt = timePtr(in.LastCheckedAt)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
