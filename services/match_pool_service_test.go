package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMatchPool_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.participant(t, "A", 1000)
	b := f.participant(t, "B", 1000)
	f.initPool(t, "m-1")

	f.at(10 * time.Second)
	row, err := f.pools.Deposit(ctx, "A", "m-1", 500, a, "")
	require.NoError(t, err)
	assert.EqualValues(t, 500, row.TotalDeposited)
	assert.Equal(t, []escrow.Deposit{{User: "A", Amount: 500}}, row.Deposits)

	f.at(20 * time.Second)
	row, err = f.pools.Deposit(ctx, "B", "m-1", 300, b, "")
	require.NoError(t, err)
	assert.EqualValues(t, 800, row.TotalDeposited)
	assert.Len(t, row.Deposits, 2)
	assert.EqualValues(t, 800, f.balance(t, row.FundAccount))

	f.at(150 * time.Second)
	row, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)
	assert.False(t, row.IsActive)

	res, err := f.pools.DistributePrizes(ctx, "admin", "m-1",
		[]escrow.Prize{{User: "A", Amount: 300}, {User: "B", Amount: 200}}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Paid, 2)
	assert.Empty(t, res.Skipped)
	assert.EqualValues(t, 500, res.TotalPaid)
	assert.EqualValues(t, 800, f.balance(t, a))
	assert.EqualValues(t, 900, f.balance(t, b))
	assert.EqualValues(t, 300, f.balance(t, row.FundAccount))
	assert.True(t, f.pool(t, "m-1").IsFinalized)

	err = f.pools.ClosePool(ctx, "admin", "m-1")
	assert.ErrorIs(t, err, escrow.ErrPoolNotEmpty)

	_, err = f.pools.DistributePrizes(ctx, "admin", "m-1", []escrow.Prize{{User: "A", Amount: 100}}, nil)
	assert.ErrorIs(t, err, escrow.ErrMatchAlreadyFinalized)

	payouts, err := f.pools.ListPayouts(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, models.PayoutPaid, payouts[0].Status)
	assert.Equal(t, "A", payouts[0].UserID)

	events, err := f.events.List(ctx, "m-1", "")
	require.NoError(t, err)
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{"deposit", "deposit", "match_ended", "prize_distributed", "prize_distributed"}, kinds)
}

func TestDeposit_KeepsTotalEqualToSum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	accts := map[string]string{
		"alice": f.participant(t, "alice", 1000),
		"bob":   f.participant(t, "bob", 1000),
	}
	f.initPool(t, "m-1")

	for i, step := range []struct {
		user   string
		amount uint64
	}{{"alice", 10}, {"bob", 20}, {"alice", 5}, {"bob", 1}} {
		f.at(time.Duration(i+1) * time.Second)
		row, err := f.pools.Deposit(ctx, step.user, "m-1", step.amount, accts[step.user], "")
		require.NoError(t, err)
		assert.Equal(t, sumOf(row.Deposits), row.TotalDeposited)
	}
	row := f.pool(t, "m-1")
	assert.EqualValues(t, 36, row.TotalDeposited)
	assert.Len(t, row.Deposits, 2)
}

func TestDeposit_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.participant(t, "mallory", 100)
	f.initPool(t, "m-1")

	tests := []struct {
		name    string
		at      time.Duration
		user    string
		amount  uint64
		account string
		wantErr error
	}{
		{name: "zero amount", at: time.Second, user: "alice", amount: 0, account: alice, wantErr: escrow.ErrInvalidAmount},
		{name: "at deadline", at: 100 * time.Second, user: "alice", amount: 1, account: alice, wantErr: escrow.ErrRegistrationClosed},
		{name: "someone else's account", at: time.Second, user: "mallory", amount: 1, account: alice, wantErr: escrow.ErrUnauthorized},
		{name: "ledger refuses", at: time.Second, user: "alice", amount: 101, account: alice, wantErr: escrow.ErrTokenTransfer},
		{name: "unknown match", at: time.Second, user: "alice", amount: 1, account: alice, wantErr: escrow.ErrMatchNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.at(tt.at)
			matchID := "m-1"
			if tt.wantErr == escrow.ErrMatchNotFound {
				matchID = "missing"
			}
			_, err := f.pools.Deposit(ctx, tt.user, matchID, tt.amount, tt.account, "")
			assert.ErrorIs(t, err, tt.wantErr)

			row := f.pool(t, "m-1")
			assert.Zero(t, row.TotalDeposited)
			assert.Empty(t, row.Deposits)
			assert.EqualValues(t, 100, f.balance(t, alice))
		})
	}
}

func TestDeposit_RetryWithSameRequestIDCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")

	_, err := f.pools.Deposit(ctx, "alice", "m-1", 40, alice, "req-1")
	require.NoError(t, err)
	row, err := f.pools.Deposit(ctx, "alice", "m-1", 40, alice, "req-1")
	require.NoError(t, err)
	assert.EqualValues(t, 40, row.TotalDeposited)
	assert.EqualValues(t, 60, f.balance(t, alice))

	_, err = f.pools.Deposit(ctx, "alice", "m-1", 41, alice, "req-1")
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
}

func TestDeposit_Capacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.initPool(t, "m-1")
	for i := 0; i < escrow.MaxDeposits; i++ {
		user := string(rune('A' + i))
		acct := f.participant(t, user, 10)
		_, err := f.pools.Deposit(ctx, user, "m-1", 1, acct, "")
		require.NoError(t, err)
	}
	late := f.participant(t, "late", 10)
	_, err := f.pools.Deposit(ctx, "late", "m-1", 1, late, "")
	assert.ErrorIs(t, err, escrow.ErrCapacityExceeded)
	assert.EqualValues(t, 10, f.balance(t, late), "no funds move when the ledger is full")
}

func TestDeposit_AmountsBeyondStorableRangeMoveNoFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	whale := f.participant(t, "whale", 1<<63)
	f.initPool(t, "m-1")

	_, err := f.pools.Deposit(ctx, "whale", "m-1", 1<<63, whale, "req-1")
	assert.ErrorIs(t, err, escrow.ErrArithmeticOverflow)
	assert.EqualValues(t, uint64(1<<63), f.balance(t, whale))
	assert.Zero(t, f.balance(t, escrow.FundAccountAddress("m-1")))

	// the running total is capped as well
	_, err = f.pools.Deposit(ctx, "whale", "m-1", escrow.MaxAmount, whale, "req-2")
	require.NoError(t, err)
	_, err = f.pools.Deposit(ctx, "whale", "m-1", 1, whale, "req-3")
	assert.ErrorIs(t, err, escrow.ErrArithmeticOverflow)

	row := f.pool(t, "m-1")
	assert.Equal(t, escrow.MaxAmount, row.TotalDeposited)
	assert.Equal(t, escrow.MaxAmount, f.balance(t, escrow.FundAccountAddress("m-1")))
	assert.EqualValues(t, 1, f.balance(t, whale))
}

// failReceipts makes inserts into deposit_receipts fail while *on is true.
func failReceipts(t *testing.T, f *fixture, on *bool) {
	t.Helper()
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_receipts", func(tx *gorm.DB) {
		if *on && tx.Statement.Table == "deposit_receipts" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
}

func TestDeposit_FailedCommitRefundsGeneratedRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	failing := true
	failReceipts(t, f, &failing)

	_, err := f.pools.Deposit(ctx, "alice", "m-1", 40, alice, "")
	require.Error(t, err)

	assert.EqualValues(t, 100, f.balance(t, alice), "funds sent back")
	assert.Zero(t, f.balance(t, escrow.FundAccountAddress("m-1")))
	assert.Zero(t, f.pool(t, "m-1").TotalDeposited)
}

func TestDeposit_FailedCommitRecoversOnRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	failing := true
	failReceipts(t, f, &failing)

	_, err := f.pools.Deposit(ctx, "alice", "m-1", 40, alice, "req-1")
	require.Error(t, err)
	assert.EqualValues(t, 60, f.balance(t, alice), "held until the retry lands")

	failing = false
	row, err := f.pools.Deposit(ctx, "alice", "m-1", 40, alice, "req-1")
	require.NoError(t, err)
	assert.EqualValues(t, 40, row.TotalDeposited)
	assert.EqualValues(t, 60, f.balance(t, alice))
	assert.EqualValues(t, 40, f.balance(t, escrow.FundAccountAddress("m-1")))
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.initPool(t, "m-1")

	row := f.pool(t, "m-1")
	assert.Equal(t, "admin", row.Admin)
	assert.True(t, row.IsActive)
	assert.Equal(t, escrow.PoolAddress("m-1"), row.PoolAddress)
	assert.Zero(t, f.balance(t, row.FundAccount))

	_, err := f.pools.Initialize(ctx, "admin", "m-1", t0)
	assert.ErrorIs(t, err, escrow.ErrMatchExists)

	_, err = f.pools.Initialize(ctx, "admin", "", t0)
	assert.ErrorIs(t, err, escrow.ErrInvalidMatchID)
}

func TestAdminOperations_RejectNonAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 50, alice, "")
	require.NoError(t, err)

	_, err = f.pools.EndMatch(ctx, "mallory", "m-1")
	assert.ErrorIs(t, err, escrow.ErrUnauthorized)
	assert.True(t, f.pool(t, "m-1").IsActive)

	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)

	_, err = f.pools.DistributePrizes(ctx, "mallory", "m-1", []escrow.Prize{{User: "alice", Amount: 50}}, nil)
	assert.ErrorIs(t, err, escrow.ErrUnauthorized)
	assert.False(t, f.pool(t, "m-1").IsFinalized)
	assert.EqualValues(t, 50, f.balance(t, alice))

	assert.ErrorIs(t, f.pools.ClosePool(ctx, "mallory", "m-1"), escrow.ErrUnauthorized)
	f.pool(t, "m-1")
}

func TestDistribute_SkipsWinnerWithoutAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 100, alice, "")
	require.NoError(t, err)
	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)

	res, err := f.pools.DistributePrizes(ctx, "admin", "m-1",
		[]escrow.Prize{{User: "ghost", Amount: 30}, {User: "alice", Amount: 0}, {User: "alice", Amount: 60}}, nil)
	require.NoError(t, err)
	require.Len(t, res.Paid, 1)
	assert.Equal(t, 2, res.Paid[0].Index)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, escrow.SkipWinnerAccountNotFound, res.Skipped[0].Reason)
	assert.Equal(t, escrow.SkipZeroAmount, res.Skipped[1].Reason)

	row := f.pool(t, "m-1")
	assert.True(t, row.IsFinalized, "finalized even with skipped winners")
	assert.EqualValues(t, 40, f.balance(t, row.FundAccount))

	payouts, err := f.pools.ListPayouts(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	assert.Equal(t, models.PayoutSkipped, payouts[0].Status)
	assert.Equal(t, escrow.SkipWinnerAccountNotFound, payouts[0].SkipReason)
}

func TestDistribute_CallerSuppliedCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.ledger.Fund("alice-alt", "alice", testMint, 0)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 100, alice, "")
	require.NoError(t, err)
	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)

	res, err := f.pools.DistributePrizes(ctx, "admin", "m-1",
		[]escrow.Prize{{User: "alice", Amount: 100}},
		[]escrow.DestinationAccount{{Address: "alice-alt", Owner: "alice", Mint: testMint}})
	require.NoError(t, err)
	require.Len(t, res.Paid, 1)
	assert.Equal(t, "alice-alt", res.Paid[0].Destination)
	assert.EqualValues(t, 100, f.balance(t, "alice-alt"))
}

func TestDistribute_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 100, alice, "")
	require.NoError(t, err)

	_, err = f.pools.DistributePrizes(ctx, "admin", "m-1", []escrow.Prize{{User: "alice", Amount: 1}}, nil)
	assert.ErrorIs(t, err, escrow.ErrMatchStillActive)

	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)
	_, err = f.pools.DistributePrizes(ctx, "admin", "m-1",
		[]escrow.Prize{{User: "alice", Amount: 60}, {User: "alice", Amount: 41}}, nil)
	assert.ErrorIs(t, err, escrow.ErrInsufficientPoolFunds)
	assert.False(t, f.pool(t, "m-1").IsFinalized)
	assert.EqualValues(t, 0, f.balance(t, alice))
}

func TestDistribute_TransferFailureAbortsAndRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 100, alice, "")
	require.NoError(t, err)
	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)

	// second destination holds another mint so the ledger refuses it
	f.ledger.Fund("bob-other", "bob", "other", 0)
	prizes := []escrow.Prize{{User: "alice", Amount: 50}, {User: "bob", Amount: 50}}
	candidates := []escrow.DestinationAccount{{Address: alice, Owner: "alice"}, {Address: "bob-other", Owner: "bob"}}

	_, err = f.pools.DistributePrizes(ctx, "admin", "m-1", prizes, candidates)
	assert.ErrorIs(t, err, escrow.ErrTokenTransfer)
	assert.False(t, f.pool(t, "m-1").IsFinalized)
	assert.EqualValues(t, 50, f.balance(t, alice))

	f.ledger.Fund("bob-usdc", "bob", testMint, 0)
	candidates[1].Address = "bob-usdc"
	res, err := f.pools.DistributePrizes(ctx, "admin", "m-1", prizes, candidates)
	require.NoError(t, err)
	assert.EqualValues(t, 100, res.TotalPaid)
	assert.EqualValues(t, 50, f.balance(t, alice), "alice is not paid twice")
	assert.EqualValues(t, 50, f.balance(t, "bob-usdc"))
}

func TestClosePool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")

	assert.ErrorIs(t, f.pools.ClosePool(ctx, "admin", "m-1"), escrow.ErrMatchNotFinalized)

	_, err := f.pools.Deposit(ctx, "alice", "m-1", 100, alice, "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.pools.ClosePool(ctx, "admin", "m-1"), escrow.ErrPoolNotEmpty)

	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	require.NoError(t, err)
	_, err = f.pools.DistributePrizes(ctx, "admin", "m-1", []escrow.Prize{{User: "alice", Amount: 100}}, nil)
	require.NoError(t, err)

	fund := escrow.FundAccountAddress("m-1")
	require.NoError(t, f.pools.ClosePool(ctx, "admin", "m-1"))
	_, err = f.pools.GetPool(ctx, "m-1")
	assert.ErrorIs(t, err, escrow.ErrMatchNotFound)
	_, err = f.ledger.Balance(ctx, fund)
	assert.Error(t, err, "fund account is closed")

	var count int64
	require.NoError(t, f.db.Unscoped().Model(&models.MatchPool{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDelegatedPoolRejectsAuthoritativeWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	f.initPool(t, "m-1")

	_, err := f.settlement.DelegateMatchPool(ctx, "admin", "m-1", 0)
	require.NoError(t, err)

	_, err = f.pools.Deposit(ctx, "alice", "m-1", 10, alice, "")
	assert.ErrorIs(t, err, escrow.ErrAccountDelegated)
	_, err = f.pools.EndMatch(ctx, "admin", "m-1")
	assert.ErrorIs(t, err, escrow.ErrAccountDelegated)
	assert.EqualValues(t, 100, f.balance(t, alice))
}

func TestTransferInRollup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.participant(t, "alice", 100)
	bob := f.participant(t, "bob", 100)
	f.initPool(t, "m-1")
	_, err := f.pools.Deposit(ctx, "alice", "m-1", 60, alice, "")
	require.NoError(t, err)
	_, err = f.pools.Deposit(ctx, "bob", "m-1", 40, bob, "")
	require.NoError(t, err)

	rollup := f.rollup()

	_, err = f.pools.TransferInRollup(ctx, "alice", "m-1", "bob", 10)
	assert.ErrorIs(t, err, escrow.ErrRollupOnly)
	_, err = rollup.TransferInRollup(ctx, "alice", "m-1", "bob", 10)
	assert.ErrorIs(t, err, escrow.ErrNotDelegated)

	_, err = f.settlement.DelegateMatchPool(ctx, "admin", "m-1", 0)
	require.NoError(t, err)

	row, err := rollup.TransferInRollup(ctx, "alice", "m-1", "bob", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 100, row.TotalDeposited)
	assert.Equal(t, sumOf(row.Deposits), row.TotalDeposited)

	row, err = rollup.TransferInRollup(ctx, "alice", "m-1", "carol", 50)
	require.NoError(t, err)
	assert.Len(t, row.Deposits, 3)
	assert.Equal(t, sumOf(row.Deposits), row.TotalDeposited)

	_, err = rollup.TransferInRollup(ctx, "alice", "m-1", "bob", 1)
	assert.ErrorIs(t, err, escrow.ErrInsufficientBalance)

	_, err = rollup.TransferInRollup(ctx, "bob", "m-1", "", 5)
	assert.ErrorIs(t, err, escrow.ErrInvalidReceiver)
	assert.Len(t, f.pool(t, "m-1").Deposits, 3)

	// claims moved, funds did not
	assert.EqualValues(t, 100, f.balance(t, escrow.FundAccountAddress("m-1")))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(1_500_000, 6))
	assert.Equal(t, "0.000001", FormatAmount(1, 6))
	assert.Equal(t, "800", FormatAmount(800, 0))
}
