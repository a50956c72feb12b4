// workers/token_account_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"match-escrow-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenAccountSyncClient pulls changed token accounts from the sync service
// into the token_accounts mirror.
type TokenAccountSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewTokenAccountSyncClient(db *gorm.DB, baseURL, token string, httpClient *http.Client) *TokenAccountSyncClient {
	return &TokenAccountSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		DB:         db,
		HTTPClient: httpClient,
	}
}

func (c *TokenAccountSyncClient) GetChangedAccounts(ctx context.Context, since time.Time) ([]models.TokenAccount, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/public/token-accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		TokenAccounts []models.TokenAccount `json:"token_accounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.TokenAccounts, nil
}

// SyncOnce upserts every account changed since the given time and returns
// how many were written.
func (c *TokenAccountSyncClient) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	accounts, err := c.GetChangedAccounts(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	err = c.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"owner",
				"mint",
				"is_active",
				"last_balance_check_at",
				"updated_at",
			}),
		},
	).Create(&accounts).Error
	if err != nil {
		return 0, fmt.Errorf("upsert %d token account(s): %w", len(accounts), err)
	}
	return len(accounts), nil
}

// PollTokenAccounts keeps the mirror fresh until ctx is cancelled. A failed
// window is retried on the next tick.
func PollTokenAccounts(ctx context.Context, client *TokenAccountSyncClient, pollInterval time.Duration) {
	log.Println("🔁 Starting token account polling (sync-service → token_accounts)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Token account polling stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()
			n, err := client.SyncOnce(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling token accounts: %v", err)
				continue
			}
			lastSyncTime = tickTime
			if n > 0 {
				log.Printf("✅ Upserted %d token account(s) into token_accounts.", n)
			}
		}
	}
}
