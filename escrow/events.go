package escrow

import "time"

type EventKind string

const (
	EventDeposit            EventKind = "deposit"
	EventMatchEnded         EventKind = "match_ended"
	EventPrizeDistributed   EventKind = "prize_distributed"
	EventPrizeSkipped       EventKind = "prize_skipped"
	EventPoolClosed         EventKind = "pool_closed"
	EventAccountDelegated   EventKind = "delegated"
	EventAccountCommitted   EventKind = "committed"
	EventAccountUndelegated EventKind = "undelegated"
)

// Event is a ledger notification. Publishing is fire-and-forget.
type Event struct {
	Kind           EventKind `json:"kind"`
	MatchID        string    `json:"match_id"`
	User           string    `json:"user,omitempty"`
	Amount         uint64    `json:"amount,omitempty"`
	TotalDeposited uint64    `json:"total_deposited,omitempty"`
	Account        string    `json:"account,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

func DepositEvent(matchID, user string, amount uint64, at time.Time) Event {
	return Event{Kind: EventDeposit, MatchID: matchID, User: user, Amount: amount, At: at}
}

func MatchEndedEvent(matchID string, total uint64, at time.Time) Event {
	return Event{Kind: EventMatchEnded, MatchID: matchID, TotalDeposited: total, At: at}
}

func PrizeDistributedEvent(matchID, user string, amount uint64, at time.Time) Event {
	return Event{Kind: EventPrizeDistributed, MatchID: matchID, User: user, Amount: amount, At: at}
}

func PrizeSkippedEvent(matchID string, s SkippedPrize, at time.Time) Event {
	return Event{Kind: EventPrizeSkipped, MatchID: matchID, User: s.User, Amount: s.Amount, Detail: s.Reason, At: at}
}

func PoolClosedEvent(matchID string, at time.Time) Event {
	return Event{Kind: EventPoolClosed, MatchID: matchID, At: at}
}

// DelegationEvent reports a change to an account's ownership or commit state.
func DelegationEvent(kind EventKind, matchID string, d *Delegation, at time.Time) Event {
	return Event{Kind: kind, MatchID: matchID, User: d.Owner, Account: d.Address, Detail: string(d.Kind), At: at}
}
