// services/token_ledger_client.go
package services

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// TokenLedgerClient talks to the external ledger-transfer service.
type TokenLedgerClient struct {
	client serviceClient
}

func NewTokenLedgerClient(baseURL, token string, httpClient *http.Client) *TokenLedgerClient {
	return &TokenLedgerClient{client: serviceClient{
		Name:          "token-ledger",
		BaseURL:       baseURL,
		Token:         token,
		HTTPClient:    httpClient,
		MaxRetries:    4,
		RetryInterval: 250 * time.Millisecond,
	}}
}

// WithRetry overrides the retry policy.
func (c *TokenLedgerClient) WithRetry(maxRetries uint64, interval time.Duration) *TokenLedgerClient {
	c.client.MaxRetries = maxRetries
	c.client.RetryInterval = interval
	return c
}

func (c *TokenLedgerClient) CreateAccount(ctx context.Context, address, owner, mint string) error {
	body := map[string]string{"address": address, "owner": owner, "mint": mint}
	return c.client.do(ctx, http.MethodPost, "/accounts", nil, body, nil)
}

func (c *TokenLedgerClient) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	var out TransferReceipt
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if err := c.client.do(ctx, http.MethodPost, "/transfers", headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *TokenLedgerClient) Balance(ctx context.Context, address string) (uint64, error) {
	var out struct {
		Balance uint64 `json:"balance"`
	}
	path := "/accounts/" + url.PathEscape(address) + "/balance"
	if err := c.client.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *TokenLedgerClient) CloseAccount(ctx context.Context, address, destination string) error {
	path := "/accounts/" + url.PathEscape(address) + "/close"
	return c.client.do(ctx, http.MethodPost, path, nil, map[string]string{"destination": destination}, nil)
}
