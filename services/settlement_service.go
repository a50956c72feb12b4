// services/settlement_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// SnapshotArchive stores committed snapshots in object storage and returns
// their public URL.
type SnapshotArchive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// SettlementService hands a match's accounts to the rollup and reconciles
// them back.
type SettlementService struct {
	DB              *gorm.DB
	Ledger          TokenLedger
	Transport       SettlementTransport
	Archive         SnapshotArchive
	Events          EventSink
	Context         escrow.ExecutionContext
	CommitFrequency time.Duration
	Now             func() time.Time
}

func NewSettlementService(db *gorm.DB, ledger TokenLedger, transport SettlementTransport, events EventSink, execCtx escrow.ExecutionContext) *SettlementService {
	return &SettlementService{
		DB:              db,
		Ledger:          ledger,
		Transport:       transport,
		Events:          events,
		Context:         execCtx,
		CommitFrequency: escrow.DefaultCommitFrequency,
		Now:             time.Now,
	}
}

// CommitResult lists which accounts were pushed and which were unchanged.
type CommitResult struct {
	MatchID   string            `json:"match_id"`
	Committed []AccountSnapshot `json:"committed"`
	Unchanged []string          `json:"unchanged"`
}

func (s *SettlementService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *SettlementService) publish(ctx context.Context, events []escrow.Event) {
	if s.Events != nil {
		s.Events.Publish(ctx, events...)
	}
}

func (s *SettlementService) DelegateMatchPool(ctx context.Context, caller, matchID string, frequency time.Duration) (*models.Delegation, error) {
	return s.delegate(ctx, caller, matchID, frequency, func(tx *gorm.DB, p *escrow.Pool) (escrow.AccountKind, string, error) {
		if err := p.Authorize(caller); err != nil {
			return "", "", err
		}
		return escrow.KindMatchPool, p.PoolAddress, nil
	})
}

func (s *SettlementService) DelegatePoolToken(ctx context.Context, caller, matchID string, frequency time.Duration) (*models.Delegation, error) {
	return s.delegate(ctx, caller, matchID, frequency, func(tx *gorm.DB, p *escrow.Pool) (escrow.AccountKind, string, error) {
		if err := p.Authorize(caller); err != nil {
			return "", "", err
		}
		return escrow.KindPoolToken, p.FundAccount, nil
	})
}

// DelegateUserDeposit delegates the caller's own deposit shadow account.
func (s *SettlementService) DelegateUserDeposit(ctx context.Context, caller, matchID string, frequency time.Duration) (*models.Delegation, error) {
	return s.delegate(ctx, caller, matchID, frequency, func(tx *gorm.DB, p *escrow.Pool) (escrow.AccountKind, string, error) {
		if caller == "" {
			return "", "", escrow.ErrUnauthorized
		}
		if _, ok := p.DepositOf(caller); !ok {
			return "", "", escrow.Wrap(escrow.CodeAccountNotFound, "no deposit to delegate",
				fmt.Errorf("%s has no deposit in match %s", caller, matchID))
		}
		return escrow.KindUserDeposit, escrow.UserDepositAddress(matchID, caller), nil
	})
}

// DelegateUserToken delegates a token account the caller owns.
func (s *SettlementService) DelegateUserToken(ctx context.Context, caller, matchID, tokenAccount string, frequency time.Duration) (*models.Delegation, error) {
	return s.delegate(ctx, caller, matchID, frequency, func(tx *gorm.DB, p *escrow.Pool) (escrow.AccountKind, string, error) {
		if caller == "" {
			return "", "", escrow.ErrUnauthorized
		}
		acct, ok, err := models.GetTokenAccountByAddress(tx, tokenAccount)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", escrow.Wrap(escrow.CodeAccountNotFound, "token account not found",
				fmt.Errorf("address %q", tokenAccount))
		}
		if acct.Owner != caller {
			return "", "", escrow.ErrUnauthorized
		}
		return escrow.KindUserToken, acct.Address, nil
	})
}

type accountResolver func(tx *gorm.DB, p *escrow.Pool) (escrow.AccountKind, string, error)

func (s *SettlementService) delegate(ctx context.Context, caller, matchID string, frequency time.Duration, resolve accountResolver) (*models.Delegation, error) {
	if frequency <= 0 {
		frequency = s.CommitFrequency
	}
	now := s.now()
	var saved models.Delegation
	var events []escrow.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		kind, address, err := resolve(tx, p)
		if err != nil {
			return err
		}
		if s.Context == escrow.ContextRollup {
			return escrow.Wrap(escrow.CodeNotDelegated, "delegation starts from the authoritative context",
				fmt.Errorf("account %s", address))
		}

		err = tx.Where("account_address = ?", address).First(&saved).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = models.Delegation{MatchID: matchID, AccountKind: string(kind), AccountAddress: address, Owner: caller}
		case err != nil:
			return err
		case saved.MatchID != matchID:
			return escrow.Wrap(escrow.CodeAccountDelegated, "account is held by another match",
				fmt.Errorf("%s belongs to %s", address, saved.MatchID))
		}

		d := saved.Domain()
		d.Kind, d.Address, d.Owner = kind, address, caller
		if err := d.Delegate(now, frequency); err != nil {
			return err
		}
		err = s.Transport.Delegate(ctx, DelegateRequest{
			MatchID:           matchID,
			Kind:              kind,
			Address:           address,
			Owner:             caller,
			CommitFrequencyMs: d.CommitFrequency.Milliseconds(),
		})
		if err != nil {
			return escrow.Wrap(escrow.CodeSettlementError, "delegate", err)
		}
		saved.Apply(d)
		if err := tx.Save(&saved).Error; err != nil {
			return fmt.Errorf("save delegation %s: %w", address, err)
		}
		events = append(events, escrow.DelegationEvent(escrow.EventAccountDelegated, matchID, d, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔀 [Settlement] %s %s of match %s delegated (commit every %dms)",
		saved.AccountKind, saved.AccountAddress, matchID, saved.CommitFrequencyMs)
	s.publish(ctx, events)
	return &saved, nil
}

// snapshot captures the current value of a delegated account.
func (s *SettlementService) snapshot(ctx context.Context, p *escrow.Pool, d *models.Delegation, now time.Time) (AccountSnapshot, error) {
	var value any
	switch escrow.AccountKind(d.AccountKind) {
	case escrow.KindMatchPool:
		value = p
	case escrow.KindPoolToken, escrow.KindUserToken:
		balance, err := s.Ledger.Balance(ctx, d.AccountAddress)
		if err != nil {
			return AccountSnapshot{}, escrow.Wrap(escrow.CodeSettlementError,
				"read balance for snapshot", err)
		}
		value = map[string]any{"address": d.AccountAddress, "owner": d.Owner, "balance": balance}
	case escrow.KindUserDeposit:
		amount, ok := p.DepositOf(d.Owner)
		value = map[string]any{"user": d.Owner, "amount": amount, "exists": ok}
	default:
		return AccountSnapshot{}, escrow.Wrap(escrow.CodeInvariantViolation, "unknown account kind",
			fmt.Errorf("%q", d.AccountKind))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return AccountSnapshot{}, err
	}
	digest, err := escrow.Digest(json.RawMessage(data))
	if err != nil {
		return AccountSnapshot{}, err
	}
	return AccountSnapshot{
		MatchID: p.MatchID,
		Kind:    escrow.AccountKind(d.AccountKind),
		Address: d.AccountAddress,
		Digest:  digest,
		Data:    data,
		TakenAt: now,
	}, nil
}

// loadDelegations returns the match's delegation rows for the named
// addresses, or every delegated row when none are named.
func loadDelegations(tx *gorm.DB, matchID string, addresses []string) ([]models.Delegation, error) {
	var rows []models.Delegation
	if len(addresses) == 0 {
		err := tx.Where("match_id = ? AND ownership = ?", matchID, string(escrow.DelegatedElsewhere)).
			Order("account_kind ASC").
			Find(&rows).Error
		return rows, err
	}
	for _, addr := range addresses {
		var d models.Delegation
		err := tx.Where("match_id = ? AND account_address = ?", matchID, addr).First(&d).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, escrow.Wrap(escrow.CodeNotDelegated, "account was never delegated",
				fmt.Errorf("address %q", addr))
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, d)
	}
	return rows, nil
}

func saveDelegations(tx *gorm.DB, rows []models.Delegation) error {
	for i := range rows {
		if err := tx.Save(&rows[i]).Error; err != nil {
			return fmt.Errorf("save delegation %s: %w", rows[i].AccountAddress, err)
		}
	}
	return nil
}

func (s *SettlementService) archive(ctx context.Context, snap AccountSnapshot, undelegated bool) string {
	if s.Archive == nil {
		return ""
	}
	phase := "commit"
	if undelegated {
		phase = "undelegate"
	}
	key := fmt.Sprintf("settlement/%s/%s/%s-%s-%d.json",
		slug.Make(snap.MatchID), snap.Kind, phase, snap.Digest[:16], snap.TakenAt.UnixMilli())
	body, _ := json.Marshal(snap)
	url, err := s.Archive.Put(ctx, key, body)
	if err != nil {
		log.Printf("⚠️ [Settlement] archive of %s failed: %v", snap.Address, err)
		return ""
	}
	return url
}

func (s *SettlementService) record(tx *gorm.DB, snaps []AccountSnapshot, urls []string, undelegated bool) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]models.SettlementCommit, 0, len(snaps))
	for i, snap := range snaps {
		rows = append(rows, models.SettlementCommit{
			MatchID:        snap.MatchID,
			AccountKind:    string(snap.Kind),
			AccountAddress: snap.Address,
			Digest:         snap.Digest,
			Undelegated:    undelegated,
			ArchiveURL:     urls[i],
			CommittedAt:    snap.TakenAt,
		})
	}
	return tx.Create(&rows).Error
}

// Commit pushes the current state of delegated accounts. Accounts whose
// state has not changed since their last commit are left alone.
func (s *SettlementService) Commit(ctx context.Context, caller, matchID string, addresses []string) (*CommitResult, error) {
	now := s.now()
	result := &CommitResult{MatchID: matchID, Committed: []AccountSnapshot{}, Unchanged: []string{}}
	var events []escrow.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := p.Authorize(caller); err != nil {
			return err
		}
		rows, err := loadDelegations(tx, matchID, addresses)
		if err != nil {
			return err
		}

		for i := range rows {
			row := &rows[i]
			snap, err := s.snapshot(ctx, p, row, now)
			if err != nil {
				return err
			}
			d := row.Domain()
			ok, err := d.Commit(snap.Digest, now)
			if err != nil {
				return err
			}
			row.Apply(d)
			if !ok {
				result.Unchanged = append(result.Unchanged, row.AccountAddress)
				continue
			}
			result.Committed = append(result.Committed, snap)
			events = append(events, escrow.DelegationEvent(escrow.EventAccountCommitted, matchID, d, now))
		}
		if len(result.Committed) == 0 {
			return saveDelegations(tx, rows)
		}

		if err := s.Transport.Commit(ctx, result.Committed); err != nil {
			return escrow.Wrap(escrow.CodeSettlementError, "commit", err)
		}
		urls := make([]string, len(result.Committed))
		for i, snap := range result.Committed {
			urls[i] = s.archive(ctx, snap, false)
		}
		if err := s.record(tx, result.Committed, urls, false); err != nil {
			return err
		}
		return saveDelegations(tx, rows)
	})
	if err != nil {
		return nil, err
	}
	if len(result.Committed) > 0 {
		log.Printf("📤 [Settlement] match %s: %d committed, %d unchanged",
			matchID, len(result.Committed), len(result.Unchanged))
	}
	s.publish(ctx, events)
	return result, nil
}

// Undelegate pushes final snapshots and returns ownership to the
// authoritative context.
func (s *SettlementService) Undelegate(ctx context.Context, caller, matchID string, addresses []string) ([]AccountSnapshot, error) {
	now := s.now()
	var snaps []AccountSnapshot
	var events []escrow.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, p, err := lockPool(tx, matchID)
		if err != nil {
			return err
		}
		if err := p.Authorize(caller); err != nil {
			return err
		}
		rows, err := loadDelegations(tx, matchID, addresses)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return escrow.Wrap(escrow.CodeNotDelegated, "nothing to undelegate", fmt.Errorf("match %s", matchID))
		}

		for i := range rows {
			snap, err := s.snapshot(ctx, p, &rows[i], now)
			if err != nil {
				return err
			}
			d := rows[i].Domain()
			if err := d.Undelegate(snap.Digest, now); err != nil {
				return err
			}
			rows[i].Apply(d)
			snaps = append(snaps, snap)
			events = append(events, escrow.DelegationEvent(escrow.EventAccountUndelegated, matchID, d, now))
		}

		if err := s.Transport.Undelegate(ctx, snaps); err != nil {
			return escrow.Wrap(escrow.CodeSettlementError, "undelegate", err)
		}
		urls := make([]string, len(snaps))
		for i, snap := range snaps {
			urls[i] = s.archive(ctx, snap, true)
		}
		if err := s.record(tx, snaps, urls, true); err != nil {
			return err
		}
		return saveDelegations(tx, rows)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔙 [Settlement] match %s: %d accounts undelegated", matchID, len(snaps))
	s.publish(ctx, events)
	return snaps, nil
}

// CommitDue commits every delegated account whose commit frequency has
// elapsed, acting as each pool's admin. It returns how many accounts were
// pushed.
func (s *SettlementService) CommitDue(ctx context.Context) (int, error) {
	now := s.now()
	var rows []models.Delegation
	if err := s.DB.WithContext(ctx).
		Where("ownership = ?", string(escrow.DelegatedElsewhere)).
		Order("match_id ASC").
		Find(&rows).Error; err != nil {
		return 0, err
	}

	due := make(map[string][]string)
	var order []string
	for _, row := range rows {
		if !row.Domain().CommitDue(now) {
			continue
		}
		if _, seen := due[row.MatchID]; !seen {
			order = append(order, row.MatchID)
		}
		due[row.MatchID] = append(due[row.MatchID], row.AccountAddress)
	}

	var errs []error
	pushed := 0
	for _, matchID := range order {
		var pool models.MatchPool
		if err := s.DB.WithContext(ctx).Select("admin").Where("match_id = ?", matchID).First(&pool).Error; err != nil {
			errs = append(errs, fmt.Errorf("match %s: %w", matchID, err))
			continue
		}
		res, err := s.Commit(ctx, pool.Admin, matchID, due[matchID])
		if err != nil {
			errs = append(errs, fmt.Errorf("match %s: %w", matchID, err))
			continue
		}
		pushed += len(res.Committed)
	}
	return pushed, errors.Join(errs...)
}

func (s *SettlementService) ListDelegations(ctx context.Context, matchID string) ([]models.Delegation, error) {
	var out []models.Delegation
	err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("created_at ASC").Find(&out).Error
	return out, err
}
