package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/models"
	"match-escrow-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testApp struct {
	app    *fiber.App
	db     *gorm.DB
	ledger *services.MemoryTokenLedger
}

func newTestApp(t *testing.T) *testApp {
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

	ledger := services.NewMemoryTokenLedger()
	events := services.NewEventService(db)
	pools := services.NewMatchPoolService(db, ledger, events, escrow.ContextAuthoritative, "usdc")
	settlement := services.NewSettlementService(db, ledger, services.NewMemorySettlementTransport(), events, escrow.ContextAuthoritative)

	app := fiber.New()
	SetupRoutes(app, pools, settlement, events, nil)
	return &testApp{app: app, db: db, ledger: ledger}
}

func (a *testApp) participant(t *testing.T, user string, balance uint64) string {
	t.Helper()
	addr := "acct-" + user
	a.ledger.Fund(addr, user, "usdc", balance)
	require.NoError(t, a.db.Create(&models.TokenAccount{
		Owner:    user,
		Mint:     "usdc",
		Address:  addr,
		IsActive: true,
	}).Error)
	return addr
}

func (a *testApp) call(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestRoutes_MatchLifecycle(t *testing.T) {
	a := newTestApp(t)
	alice := a.participant(t, "alice", 1000)
	bob := a.participant(t, "bob", 1000)
	regEnd := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	status, body := a.call(t, http.MethodPost, "/matches", "admin", fiber.Map{
		"match_id": "m-1", "registration_end_time": regEnd,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, string(escrow.StateActive), body["state"])

	status, body = a.call(t, http.MethodPost, "/matches", "admin", fiber.Map{
		"match_id": "m-1", "registration_end_time": regEnd,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "MATCH_EXISTS", body["code"])

	status, _ = a.call(t, http.MethodPost, "/matches/m-1/deposits", "alice", fiber.Map{
		"amount": 500, "funding_account": alice, "request_id": "r-1",
	})
	require.Equal(t, http.StatusOK, status)
	status, body = a.call(t, http.MethodPost, "/matches/m-1/deposits", "bob", fiber.Map{
		"amount": 300, "funding_account": bob,
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 800, body["total_deposited"])
	assert.Equal(t, "0.0008", body["total_deposited_formatted"])

	status, body = a.call(t, http.MethodPost, "/matches/m-1/deposits", "bob", fiber.Map{
		"amount": 0, "funding_account": bob,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_AMOUNT", body["code"])

	status, body = a.call(t, http.MethodPost, "/matches/m-1/end", "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, body = a.call(t, http.MethodPost, "/matches/m-1/distribute", "admin", fiber.Map{
		"prizes": []escrow.Prize{{User: "alice", Amount: 800}},
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "MATCH_STILL_ACTIVE", body["code"])

	status, _ = a.call(t, http.MethodPost, "/matches/m-1/end", "admin", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = a.call(t, http.MethodPost, "/matches/m-1/distribute", "admin", fiber.Map{
		"prizes": []escrow.Prize{{User: "alice", Amount: 500}, {User: "ghost", Amount: 300}},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 500, body["total_paid"])
	assert.Len(t, body["skipped"], 1)

	status, body = a.call(t, http.MethodGet, "/matches/m-1/payouts", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = a.call(t, http.MethodDelete, "/matches/m-1", "admin", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "POOL_NOT_EMPTY", body["code"])

	status, body = a.call(t, http.MethodGet, "/matches/m-1/events", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["events"])
}

func TestRoutes_RequireCallerIdentity(t *testing.T) {
	a := newTestApp(t)

	status, _ := a.call(t, http.MethodGet, "/matches/m-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := a.call(t, http.MethodGet, "/matches/m-1", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "MATCH_NOT_FOUND", body["code"])

	status, body = a.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRoutes_Delegation(t *testing.T) {
	a := newTestApp(t)
	alice := a.participant(t, "alice", 100)
	regEnd := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	status, _ := a.call(t, http.MethodPost, "/matches", "admin", fiber.Map{
		"match_id": "m-2", "registration_end_time": regEnd,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := a.call(t, http.MethodPost, "/matches/m-2/delegations/pool", "admin", fiber.Map{
		"commit_frequency_ms": 5000,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "delegated", body["ownership"])
	assert.EqualValues(t, 5000, body["commit_frequency_ms"])

	status, body = a.call(t, http.MethodPost, "/matches/m-2/deposits", "alice", fiber.Map{
		"amount": 10, "funding_account": alice,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ACCOUNT_DELEGATED", body["code"])

	status, body = a.call(t, http.MethodPost, "/matches/m-2/rollup/transfers", "alice", fiber.Map{
		"receiver": "bob", "amount": 1,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ROLLUP_ONLY", body["code"])

	status, body = a.call(t, http.MethodPost, "/matches/m-2/commit", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["committed"], 1)

	status, body = a.call(t, http.MethodGet, "/matches/m-2/delegations", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["delegations"], 1)

	status, body = a.call(t, http.MethodPost, "/matches/m-2/undelegate", "admin", fiber.Map{
		"accounts": []string{escrow.PoolAddress("m-2")},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["undelegated"], 1)

	status, _ = a.call(t, http.MethodPost, "/matches/m-2/deposits", "alice", fiber.Map{
		"amount": 10, "funding_account": alice,
	})
	assert.Equal(t, http.StatusOK, status)
}
