package escrow

// Prize is one requested payout.
type Prize struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

// DestinationAccount is a candidate token account a winner can be paid to.
type DestinationAccount struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Mint    string `json:"mint,omitempty"`
}

// Skip reasons recorded for prizes that produce no transfer.
const (
	SkipZeroAmount            = "zero_amount"
	SkipWinnerAccountNotFound = "winner_account_not_found"
)

// PlannedTransfer is a prize resolved to a destination account.
type PlannedTransfer struct {
	Index       int    `json:"index"`
	User        string `json:"user"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
}

// SkippedPrize is a prize that was not paid and why.
type SkippedPrize struct {
	Index  int    `json:"index"`
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
	Reason string `json:"reason"`
}

// DistributionPlan is the ordered outcome of resolving prizes to accounts.
type DistributionPlan struct {
	Transfers []PlannedTransfer `json:"transfers"`
	Skipped   []SkippedPrize    `json:"skipped"`
	Requested uint64            `json:"requested"`
}

// CheckDistribution validates the lifecycle and that the requested total
// fits inside total_deposited. It returns the requested total.
func (p *Pool) CheckDistribution(prizes []Prize) (uint64, error) {
	if err := p.checkDistributable(); err != nil {
		return 0, err
	}
	amounts := make([]uint64, len(prizes))
	for i, prize := range prizes {
		amounts[i] = prize.Amount
	}
	total, err := SumAmounts(amounts...)
	if err != nil {
		return 0, err
	}
	if total > p.TotalDeposited {
		return 0, ErrInsufficientPoolFunds
	}
	return total, nil
}

// PlanDistribution resolves every prize against the candidate accounts.
// The owner lookup is built once; the first candidate per owner wins and
// candidates holding another mint are ignored.
func (p *Pool) PlanDistribution(prizes []Prize, candidates []DestinationAccount) (*DistributionPlan, error) {
	requested, err := p.CheckDistribution(prizes)
	if err != nil {
		return nil, err
	}

	byOwner := make(map[string]DestinationAccount, len(candidates))
	for _, c := range candidates {
		if c.Owner == "" || c.Address == "" {
			continue
		}
		if c.Mint != "" && p.Mint != "" && c.Mint != p.Mint {
			continue
		}
		if _, ok := byOwner[c.Owner]; !ok {
			byOwner[c.Owner] = c
		}
	}

	plan := &DistributionPlan{
		Transfers: []PlannedTransfer{},
		Skipped:   []SkippedPrize{},
		Requested: requested,
	}
	for i, prize := range prizes {
		if prize.Amount == 0 {
			plan.Skipped = append(plan.Skipped, SkippedPrize{Index: i, User: prize.User, Reason: SkipZeroAmount})
			continue
		}
		dest, ok := byOwner[prize.User]
		if !ok {
			plan.Skipped = append(plan.Skipped, SkippedPrize{
				Index: i, User: prize.User, Amount: prize.Amount, Reason: SkipWinnerAccountNotFound,
			})
			continue
		}
		plan.Transfers = append(plan.Transfers, PlannedTransfer{
			Index: i, User: prize.User, Destination: dest.Address, Amount: prize.Amount,
		})
	}
	return plan, nil
}

// PlannedTotal is the sum of amounts that will actually be transferred.
func (d *DistributionPlan) PlannedTotal() (uint64, error) {
	amounts := make([]uint64, len(d.Transfers))
	for i, t := range d.Transfers {
		amounts[i] = t.Amount
	}
	return SumAmounts(amounts...)
}
