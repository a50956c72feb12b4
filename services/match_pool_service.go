// services/match_pool_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchPoolService runs the escrow operations for match pools. Every
// operation is a single transaction holding the pool row lock.
type MatchPoolService struct {
	DB       *gorm.DB
	Ledger   TokenLedger
	Events   EventSink
	Context  escrow.ExecutionContext
	Mint     string
	Decimals int32
	Now      func() time.Time
}

func NewMatchPoolService(db *gorm.DB, ledger TokenLedger, events EventSink, execCtx escrow.ExecutionContext, mint string) *MatchPoolService {
	return &MatchPoolService{
		DB:      db,
		Ledger:  ledger,
		Events:  events,
		Context: execCtx,
		Mint:    mint,
		Now:     time.Now,
	}
}

// PaidPrize is a prize that was transferred.
type PaidPrize struct {
	escrow.PlannedTransfer
	TransferRef string `json:"transfer_ref"`
}

// DistributionResult reports what a distribution paid and skipped.
type DistributionResult struct {
	MatchID   string                `json:"match_id"`
	Paid      []PaidPrize           `json:"paid"`
	Skipped   []escrow.SkippedPrize `json:"skipped"`
	TotalPaid uint64                `json:"total_paid"`
}

func (s *MatchPoolService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *MatchPoolService) publish(ctx context.Context, events []escrow.Event) {
	if s.Events != nil {
		s.Events.Publish(ctx, events...)
	}
}

// lockPool loads the pool row with FOR UPDATE and verifies its derived
// addresses.
func lockPool(tx *gorm.DB, matchID string) (*models.MatchPool, *escrow.Pool, error) {
	var row models.MatchPool
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("match_id = ?", matchID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, escrow.ErrMatchNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load pool %s: %w", matchID, err)
	}
	p := row.Domain()
	if err := p.VerifyDerivation(); err != nil {
		return nil, nil, err
	}
	return &row, p, nil
}

// savePool re-checks the ledger invariants and writes the pool back.
func savePool(tx *gorm.DB, row *models.MatchPool, p *escrow.Pool) error {
	if err := p.CheckInvariants(); err != nil {
		return err
	}
	row.Apply(p)
	if err := tx.Save(row).Error; err != nil {
		return fmt.Errorf("save pool %s: %w", p.MatchID, err)
	}
	return nil
}

// ownershipOf reads the ownership flag of an account. Accounts that were
// never delegated are owned here.
func ownershipOf(tx *gorm.DB, address string) (escrow.Ownership, error) {
	var d models.Delegation
	err := tx.Where("account_address = ?", address).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return escrow.OwnedHere, nil
	}
	if err != nil {
		return "", fmt.Errorf("load delegation for %s: %w", address, err)
	}
	return escrow.Ownership(d.Ownership), nil
}

// guard fails unless this execution context may write every address.
func (s *MatchPoolService) guard(tx *gorm.DB, addresses ...string) error {
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		o, err := ownershipOf(tx, addr)
		if err != nil {
			return err
		}
		if err := escrow.CanMutate(s.Context, o); err != nil {
			return err
		}
	}
	return nil
}

// Initialize creates the pool for a match and its fund-holding account.
// The caller becomes the admin.
func (s *MatchPoolService) Initialize(ctx context.Context, caller, matchID string, registrationEnd time.Time) (*models.MatchPool, error) {
	p, err := escrow.NewPool(caller, matchID, registrationEnd, s.Mint)
	if err != nil {
		return nil, err
	}
	if err := escrow.CanMutate(s.Context, escrow.OwnedHere); err != nil {
		return nil, err
	}

	row := models.NewMatchPool(p)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MatchPool{}).Where("match_id = ?", matchID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return escrow.ErrMatchExists
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("create pool %s: %w", matchID, err)
		}
		if err := s.Ledger.CreateAccount(ctx, p.FundAccount, p.PoolAddress, p.Mint); err != nil {
			return escrow.Wrap(escrow.CodeTokenTransferError, "create fund account", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [Escrow] pool initialized for match %s (admin %s, registration ends %s)",
		matchID, caller, registrationEnd.Format(time.RFC3339))
	return row, nil
}

// Deposit moves amount from the caller's funding account into the pool and
// records the claim. A retried deposit carrying the same requestID reuses
// the ledger transfer and is credited at most once. When requestID is empty
// a fresh id is generated, and since no retry can ever reuse it, funds that
// moved before a failed commit are sent back.
func (s *MatchPoolService) Deposit(ctx context.Context, caller, matchID string, amount uint64, fundingAccount, requestID string) (*models.MatchPool, error) {
	if caller == "" {
		return nil, escrow.ErrUnauthorized
	}
	if fundingAccount == "" {
		return nil, escrow.New(escrow.CodeAccountNotFound, "funding account is required")
	}
	generated := requestID == ""
	if generated {
		requestID = uuid.NewString()
	}
	transferKey := fmt.Sprintf("%s:deposit:%s:%s", matchID, caller, requestID)
	now := s.now()

	var saved *models.MatchPool
	var events []escrow.Event
	var moved *TransferRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := s.guard(tx, p.PoolAddress, p.FundAccount, fundingAccount, escrow.UserDepositAddress(matchID, caller)); err != nil {
			return err
		}

		mirror, mirrored, err := models.GetTokenAccountByAddress(tx, fundingAccount)
		if err != nil {
			return err
		}
		if mirrored && mirror.Owner != caller {
			return escrow.Wrap(escrow.CodeUnauthorized, "funding account not owned by caller",
				fmt.Errorf("%s is owned by %s", fundingAccount, mirror.Owner))
		}

		var prior models.DepositReceipt
		err = tx.Where("match_id = ? AND request_id = ?", matchID, requestID).First(&prior).Error
		switch {
		case err == nil:
			if prior.UserID != caller || prior.Amount != amount {
				return escrow.Wrap(escrow.CodeInvalidAmount, "request id reused for a different deposit",
					fmt.Errorf("request %s", requestID))
			}
			saved = row
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		staged := p.Clone()
		if err := staged.Deposit(caller, amount, now); err != nil {
			return err
		}

		req := TransferRequest{
			From:           fundingAccount,
			To:             p.FundAccount,
			Amount:         amount,
			Authority:      caller,
			Mint:           p.Mint,
			IdempotencyKey: transferKey,
			Memo:           "match deposit",
		}
		receipt, err := s.Ledger.Transfer(ctx, req)
		if err != nil {
			return escrow.Wrap(escrow.CodeTokenTransferError, "deposit transfer", err)
		}
		moved = &req

		if err := savePool(tx, row, staged); err != nil {
			return err
		}
		err = tx.Create(&models.DepositReceipt{
			MatchID:        matchID,
			RequestID:      requestID,
			UserID:         caller,
			Amount:         amount,
			FundingAccount: fundingAccount,
			TransferRef:    receipt.Reference,
		}).Error
		if err != nil {
			return fmt.Errorf("record deposit receipt: %w", err)
		}
		ev := escrow.DepositEvent(matchID, caller, amount, now)
		ev.TotalDeposited = staged.TotalDeposited
		events = append(events, ev)
		saved = row
		return nil
	})
	if err != nil {
		if moved != nil && generated {
			s.refundDeposit(ctx, escrow.PoolAddress(matchID), *moved, err)
		}
		return nil, err
	}
	s.publish(ctx, events)
	return saved, nil
}

// refundDeposit sends a deposit back to its funding account after the claim
// failed to commit. The fund-holding account signs with the pool address.
func (s *MatchPoolService) refundDeposit(ctx context.Context, poolAddress string, moved TransferRequest, cause error) {
	_, err := s.Ledger.Transfer(ctx, TransferRequest{
		From:           moved.To,
		To:             moved.From,
		Amount:         moved.Amount,
		Authority:      poolAddress,
		Mint:           moved.Mint,
		IdempotencyKey: moved.IdempotencyKey + ":refund",
		Memo:           "match deposit refund",
	})
	if err != nil {
		log.Printf("❌ [Escrow] deposit %s failed (%v) and the refund failed too: %v", moved.IdempotencyKey, cause, err)
		return
	}
	log.Printf("↩️ [Escrow] deposit %s refunded after failed commit: %v", moved.IdempotencyKey, cause)
}

// EndMatch closes registration for good. Admin only.
func (s *MatchPoolService) EndMatch(ctx context.Context, caller, matchID string) (*models.MatchPool, error) {
	now := s.now()
	var saved *models.MatchPool
	var events []escrow.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := p.Authorize(caller); err != nil {
			return err
		}
		if err := s.guard(tx, p.PoolAddress); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
		if err := savePool(tx, row, p); err != nil {
			return err
		}
		events = append(events, escrow.MatchEndedEvent(matchID, p.TotalDeposited, now))
		saved = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏁 [Escrow] match %s ended with %d deposited", matchID, saved.TotalDeposited)
	s.publish(ctx, events)
	return saved, nil
}

// winnerAccounts reads mirrored token accounts of the listed winners that
// hold the pool's mint, oldest first.
func winnerAccounts(tx *gorm.DB, mint string, prizes []escrow.Prize) ([]escrow.DestinationAccount, error) {
	users := make([]string, 0, len(prizes))
	for _, p := range prizes {
		users = append(users, p.User)
	}
	if len(users) == 0 {
		return nil, nil
	}
	var accts []models.TokenAccount
	err := tx.Where("owner IN ? AND mint = ? AND is_active = ?", users, mint, true).
		Order("created_at ASC").
		Order("address ASC").
		Find(&accts).Error
	if err != nil {
		return nil, fmt.Errorf("load winner accounts: %w", err)
	}
	out := make([]escrow.DestinationAccount, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Destination())
	}
	return out, nil
}

// DistributePrizes pays winners from the fund-holding account and finalizes
// the match. Winners without a matching destination are skipped; a failed
// transfer aborts the whole call and leaves the pool Ended. Candidates may be
// nil, in which case the token account mirror is used.
func (s *MatchPoolService) DistributePrizes(ctx context.Context, caller, matchID string, prizes []escrow.Prize, candidates []escrow.DestinationAccount) (*DistributionResult, error) {
	now := s.now()
	result := &DistributionResult{MatchID: matchID, Paid: []PaidPrize{}, Skipped: []escrow.SkippedPrize{}}
	var events []escrow.Event

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := p.Authorize(caller); err != nil {
			return err
		}
		if err := s.guard(tx, p.PoolAddress, p.FundAccount); err != nil {
			return err
		}
		if _, err := p.CheckDistribution(prizes); err != nil {
			return err
		}
		if candidates == nil {
			if candidates, err = winnerAccounts(tx, p.Mint, prizes); err != nil {
				return err
			}
		}
		plan, err := p.PlanDistribution(prizes, candidates)
		if err != nil {
			return err
		}
		planned, err := plan.PlannedTotal()
		if err != nil {
			return err
		}

		payouts := make([]models.PrizePayout, 0, len(prizes))
		for _, t := range plan.Transfers {
			if err := s.guard(tx, t.Destination); err != nil {
				return err
			}
			receipt, err := s.Ledger.Transfer(ctx, TransferRequest{
				From:           p.FundAccount,
				To:             t.Destination,
				Amount:         t.Amount,
				Authority:      p.PoolAddress,
				Mint:           p.Mint,
				IdempotencyKey: fmt.Sprintf("%s:prize:%d:%s", matchID, t.Index, t.User),
				Memo:           "match prize",
			})
			if err != nil {
				return escrow.Wrap(escrow.CodeTokenTransferError,
					fmt.Sprintf("prize transfer to %s", t.User), err)
			}
			result.Paid = append(result.Paid, PaidPrize{PlannedTransfer: t, TransferRef: receipt.Reference})
			payouts = append(payouts, models.PrizePayout{
				MatchID:     matchID,
				Position:    t.Index,
				UserID:      t.User,
				Amount:      t.Amount,
				Destination: t.Destination,
				Status:      models.PayoutPaid,
				TransferRef: receipt.Reference,
			})
			events = append(events, escrow.PrizeDistributedEvent(matchID, t.User, t.Amount, now))
		}
		for _, sk := range plan.Skipped {
			if sk.Reason == escrow.SkipWinnerAccountNotFound {
				log.Printf("⚠️ [Escrow] %v: %s has no %s account, prize #%d of %d skipped",
					escrow.ErrWinnerAccountNotFound, sk.User, p.Mint, sk.Index, sk.Amount)
			}
			result.Skipped = append(result.Skipped, sk)
			payouts = append(payouts, models.PrizePayout{
				MatchID:    matchID,
				Position:   sk.Index,
				UserID:     sk.User,
				Amount:     sk.Amount,
				Status:     models.PayoutSkipped,
				SkipReason: sk.Reason,
			})
			events = append(events, escrow.PrizeSkippedEvent(matchID, sk, now))
		}

		if len(payouts) > 0 {
			if err := tx.Create(&payouts).Error; err != nil {
				return fmt.Errorf("record payouts: %w", err)
			}
		}
		result.TotalPaid = planned
		if err := p.MarkFinalized(); err != nil {
			return err
		}
		return savePool(tx, row, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏆 [Escrow] match %s finalized: %d paid (%d units), %d skipped",
		matchID, len(result.Paid), result.TotalPaid, len(result.Skipped))
	s.publish(ctx, events)
	return result, nil
}

// ClosePool destroys a finalized, drained pool. The fund-holding account is
// closed with any storage refund going to the admin.
func (s *MatchPoolService) ClosePool(ctx context.Context, caller, matchID string) error {
	now := s.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := p.Authorize(caller); err != nil {
			return err
		}
		if err := s.guard(tx, p.PoolAddress, p.FundAccount); err != nil {
			return err
		}
		balance, err := s.Ledger.Balance(ctx, p.FundAccount)
		if err != nil {
			return escrow.Wrap(escrow.CodeTokenTransferError, "read fund balance", err)
		}
		if err := p.Close(balance); err != nil {
			return err
		}
		if err := s.Ledger.CloseAccount(ctx, p.FundAccount, p.Admin); err != nil {
			return escrow.Wrap(escrow.CodeTokenTransferError, "close fund account", err)
		}
		if err := tx.Unscoped().Where("match_id = ?", matchID).Delete(&models.Delegation{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(row).Error
	})
	if err != nil {
		return err
	}
	log.Printf("🧹 [Escrow] pool for match %s closed", matchID)
	s.publish(ctx, []escrow.Event{escrow.PoolClosedEvent(matchID, now)})
	return nil
}

// TransferInRollup reassigns part of the caller's claim to receiver. It
// only runs in the rollup context on a delegated pool.
func (s *MatchPoolService) TransferInRollup(ctx context.Context, caller, matchID, receiver string, amount uint64) (*models.MatchPool, error) {
	if s.Context != escrow.ContextRollup {
		return nil, escrow.ErrRollupOnly
	}
	if caller == "" {
		return nil, escrow.ErrUnauthorized
	}
	now := s.now()
	var saved *models.MatchPool
	var events []escrow.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := s.guard(tx, p.PoolAddress); err != nil {
			return err
		}
		if err := p.TransferInRollup(caller, receiver, amount); err != nil {
			return err
		}
		if err := savePool(tx, row, p); err != nil {
			return err
		}
		if caller != receiver {
			ev := escrow.DepositEvent(matchID, receiver, amount, now)
			ev.TotalDeposited = p.TotalDeposited
			ev.Detail = "rollup transfer from " + caller
			events = append(events, ev)
		}
		saved = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events)
	return saved, nil
}

func (s *MatchPoolService) GetPool(ctx context.Context, matchID string) (*models.MatchPool, error) {
	var row models.MatchPool
	err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrow.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *MatchPoolService) ListPayouts(ctx context.Context, matchID string) ([]models.PrizePayout, error) {
	var out []models.PrizePayout
	err := s.DB.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}
