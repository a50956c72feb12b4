package escrow

import (
	"fmt"
	"time"
)

const (
	MaxMatchIDLen = 50
	MaxDeposits   = 50
)

// Deposit is one participant's claim on the pool.
type Deposit struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

// Pool is the escrow record for one match.
type Pool struct {
	Admin               string    `json:"admin"`
	MatchID             string    `json:"match_id"`
	RegistrationEndTime time.Time `json:"registration_end_time"`
	TotalDeposited      uint64    `json:"total_deposited"`
	IsActive            bool      `json:"is_active"`
	IsFinalized         bool      `json:"is_finalized"`
	Deposits            []Deposit `json:"deposits"`
	Mint                string    `json:"mint"`
	PoolAddress         string    `json:"pool_address"`
	FundAccount         string    `json:"fund_account"`

	closed bool
}

// NewPool validates the inputs and returns an Active pool with an empty ledger.
func NewPool(admin, matchID string, registrationEnd time.Time, mint string) (*Pool, error) {
	if matchID == "" || len(matchID) > MaxMatchIDLen {
		return nil, Wrap(CodeInvalidMatchID, "invalid match id",
			fmt.Errorf("length %d not in [1,%d]", len(matchID), MaxMatchIDLen))
	}
	if admin == "" {
		return nil, ErrUnauthorized
	}
	return &Pool{
		Admin:               admin,
		MatchID:             matchID,
		RegistrationEndTime: registrationEnd,
		IsActive:            true,
		Deposits:            []Deposit{},
		Mint:                mint,
		PoolAddress:         PoolAddress(matchID),
		FundAccount:         FundAccountAddress(matchID),
	}, nil
}

// Authorize is the admin gate. It must run before any other check in an
// admin operation.
func (p *Pool) Authorize(caller string) error {
	if caller == "" || caller != p.Admin {
		return ErrUnauthorized
	}
	return nil
}

// VerifyDerivation checks that the stored addresses match the match id.
func (p *Pool) VerifyDerivation() error {
	if p.PoolAddress != PoolAddress(p.MatchID) || p.FundAccount != FundAccountAddress(p.MatchID) {
		return Wrap(CodeInvariantViolation, "pool addresses do not match derivation",
			fmt.Errorf("match %s", p.MatchID))
	}
	return nil
}

// Clone returns a deep copy so a change can be staged and discarded.
func (p *Pool) Clone() *Pool {
	cp := *p
	cp.Deposits = make([]Deposit, len(p.Deposits))
	copy(cp.Deposits, p.Deposits)
	return &cp
}

// DepositOf returns the user's recorded amount and whether an entry exists.
func (p *Pool) DepositOf(user string) (uint64, bool) {
	if i := p.indexOf(user); i >= 0 {
		return p.Deposits[i].Amount, true
	}
	return 0, false
}

func (p *Pool) indexOf(user string) int {
	for i := range p.Deposits {
		if p.Deposits[i].User == user {
			return i
		}
	}
	return -1
}

// Deposit records amount for user. The ledger is only touched once every
// check has passed.
func (p *Pool) Deposit(user string, amount uint64, now time.Time) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if !p.IsActive {
		return ErrMatchInactive
	}
	if !now.Before(p.RegistrationEndTime) {
		return ErrRegistrationClosed
	}
	total, err := checkedAdd(p.TotalDeposited, amount)
	if err != nil {
		return err
	}
	if err := p.credit(user, amount); err != nil {
		return err
	}
	p.TotalDeposited = total
	return nil
}

// credit increments an existing entry or appends a new one.
func (p *Pool) credit(user string, amount uint64) error {
	if i := p.indexOf(user); i >= 0 {
		next, err := checkedAdd(p.Deposits[i].Amount, amount)
		if err != nil {
			return err
		}
		p.Deposits[i].Amount = next
		return nil
	}
	if len(p.Deposits) >= MaxDeposits {
		return ErrCapacityExceeded
	}
	p.Deposits = append(p.Deposits, Deposit{User: user, Amount: amount})
	return nil
}

// CheckInvariants verifies that the total equals the sum of claims, that each
// user has at most one entry, and the capacity bound.
func (p *Pool) CheckInvariants() error {
	if len(p.Deposits) > MaxDeposits {
		return Wrap(CodeInvariantViolation, "ledger invariant violated",
			fmt.Errorf("%d deposit entries exceed capacity %d", len(p.Deposits), MaxDeposits))
	}
	seen := make(map[string]struct{}, len(p.Deposits))
	var sum uint64
	for _, d := range p.Deposits {
		if _, dup := seen[d.User]; dup {
			return Wrap(CodeInvariantViolation, "ledger invariant violated",
				fmt.Errorf("duplicate entry for %s", d.User))
		}
		seen[d.User] = struct{}{}
		var err error
		if sum, err = checkedAdd(sum, d.Amount); err != nil {
			return err
		}
	}
	if sum != p.TotalDeposited {
		return Wrap(CodeInvariantViolation, "ledger invariant violated",
			fmt.Errorf("total_deposited %d != sum of deposits %d", p.TotalDeposited, sum))
	}
	return nil
}
