package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testMint = "usdc"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.MatchPool{},
		&models.Delegation{},
		&models.PrizePayout{},
		&models.DepositReceipt{},
		&models.LedgerEvent{},
		&models.SettlementCommit{},
		&models.TokenAccount{},
	))
	return db
}

type memoryArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *memoryArchive) Put(ctx context.Context, key string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return "https://cdn.test/" + key, nil
}

type fixture struct {
	db         *gorm.DB
	ledger     *MemoryTokenLedger
	transport  *MemorySettlementTransport
	archive    *memoryArchive
	events     *EventService
	pools      *MatchPoolService
	settlement *SettlementService
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:        newTestDB(t),
		ledger:    NewMemoryTokenLedger(),
		transport: NewMemorySettlementTransport(),
		archive:   &memoryArchive{},
		clock:     t0,
	}
	f.events = NewEventService(f.db)
	f.pools = NewMatchPoolService(f.db, f.ledger, f.events, escrow.ContextAuthoritative, testMint)
	f.pools.Now = f.now
	f.settlement = NewSettlementService(f.db, f.ledger, f.transport, f.events, escrow.ContextAuthoritative)
	f.settlement.Archive = f.archive
	f.settlement.Now = f.now
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) at(d time.Duration) { f.clock = t0.Add(d) }

// rollup returns a pool service acting as the rollup over the same store.
func (f *fixture) rollup() *MatchPoolService {
	svc := NewMatchPoolService(f.db, f.ledger, f.events, escrow.ContextRollup, testMint)
	svc.Now = f.now
	return svc
}

// participant funds a token account for user and mirrors it.
func (f *fixture) participant(t *testing.T, user string, balance uint64) string {
	t.Helper()
	addr := "acct-" + user
	f.ledger.Fund(addr, user, testMint, balance)
	require.NoError(t, f.db.Create(&models.TokenAccount{
		Owner:              user,
		Mint:               testMint,
		Address:            addr,
		IsActive:           true,
		LastBalanceCheckAt: t0,
	}).Error)
	return addr
}

func (f *fixture) initPool(t *testing.T, matchID string) {
	t.Helper()
	_, err := f.pools.Initialize(context.Background(), "admin", matchID, t0.Add(100*time.Second))
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, addr string) uint64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func (f *fixture) pool(t *testing.T, matchID string) *models.MatchPool {
	t.Helper()
	row, err := f.pools.GetPool(context.Background(), matchID)
	require.NoError(t, err)
	return row
}

func sumOf(deposits []escrow.Deposit) uint64 {
	var s uint64
	for _, d := range deposits {
		s += d.Amount
	}
	return s
}
