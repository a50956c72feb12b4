package escrow

import (
	"fmt"
	"time"
)

// DefaultCommitFrequency is the longest the rollup may hold delegated state
// before pushing it back.
const DefaultCommitFrequency = 120 * time.Second

// AccountKind names the categories of account that can be delegated.
type AccountKind string

const (
	KindMatchPool   AccountKind = "match_pool"
	KindPoolToken   AccountKind = "pool_token"
	KindUserDeposit AccountKind = "user_deposit"
	KindUserToken   AccountKind = "user_token"
)

func (k AccountKind) Valid() bool {
	switch k {
	case KindMatchPool, KindPoolToken, KindUserDeposit, KindUserToken:
		return true
	}
	return false
}

// Ownership says which context holds mutation authority over an account.
type Ownership string

const (
	OwnedHere          Ownership = "owned"
	DelegatedElsewhere Ownership = "delegated"
)

// ExecutionContext identifies where this process runs.
type ExecutionContext string

const (
	ContextAuthoritative ExecutionContext = "authoritative"
	ContextRollup        ExecutionContext = "rollup"
)

func ParseExecutionContext(s string) (ExecutionContext, error) {
	switch ExecutionContext(s) {
	case ContextAuthoritative, ContextRollup:
		return ExecutionContext(s), nil
	case "":
		return ContextAuthoritative, nil
	}
	return "", fmt.Errorf("unknown execution context %q", s)
}

// CanMutate enforces the ownership flag: the authoritative context may only
// write accounts it owns, the rollup only accounts delegated to it.
func CanMutate(ctx ExecutionContext, o Ownership) error {
	if o == "" {
		o = OwnedHere
	}
	switch ctx {
	case ContextRollup:
		if o != DelegatedElsewhere {
			return ErrNotDelegated
		}
	default:
		if o == DelegatedElsewhere {
			return ErrAccountDelegated
		}
	}
	return nil
}

// Delegation tracks the ownership of one account and its commit history.
type Delegation struct {
	Kind             AccountKind   `json:"kind"`
	Address          string        `json:"address"`
	Owner            string        `json:"owner"`
	Ownership        Ownership     `json:"ownership"`
	CommitFrequency  time.Duration `json:"commit_frequency"`
	DelegatedAt      time.Time     `json:"delegated_at"`
	LastCommittedAt  time.Time     `json:"last_committed_at"`
	LastCheckedAt    time.Time     `json:"last_checked_at"`
	LastCommitDigest string        `json:"last_commit_digest"`
}

// Delegate hands mutation authority to the rollup.
func (d *Delegation) Delegate(now time.Time, frequency time.Duration) error {
	if d.Ownership == DelegatedElsewhere {
		return ErrAlreadyDelegated
	}
	if frequency <= 0 {
		frequency = DefaultCommitFrequency
	}
	d.Ownership = DelegatedElsewhere
	d.CommitFrequency = frequency
	d.DelegatedAt = now
	d.LastCommittedAt = time.Time{}
	d.LastCheckedAt = time.Time{}
	d.LastCommitDigest = ""
	return nil
}

// Commit records a pushed snapshot. It reports false when digest equals
// the last committed one; only the check time moves then.
func (d *Delegation) Commit(digest string, now time.Time) (bool, error) {
	if d.Ownership != DelegatedElsewhere {
		return false, ErrNotDelegated
	}
	d.LastCheckedAt = now
	if digest == d.LastCommitDigest {
		return false, nil
	}
	d.LastCommitDigest = digest
	d.LastCommittedAt = now
	return true, nil
}

// Undelegate records the final snapshot and returns authority.
func (d *Delegation) Undelegate(digest string, now time.Time) error {
	if d.Ownership != DelegatedElsewhere {
		return ErrNotDelegated
	}
	d.Ownership = OwnedHere
	d.LastCommitDigest = digest
	d.LastCommittedAt = now
	return nil
}

// CommitDue reports whether the commit cadence has elapsed.
func (d *Delegation) CommitDue(now time.Time) bool {
	if d.Ownership != DelegatedElsewhere {
		return false
	}
	last := d.DelegatedAt
	for _, t := range []time.Time{d.LastCommittedAt, d.LastCheckedAt} {
		if t.After(last) {
			last = t
		}
	}
	freq := d.CommitFrequency
	if freq <= 0 {
		freq = DefaultCommitFrequency
	}
	return !now.Before(last.Add(freq))
}
