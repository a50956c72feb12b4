// services/settlement_transport.go
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"match-escrow-system/escrow"
)

// AccountSnapshot is the value of one delegated account at commit time.
type AccountSnapshot struct {
	MatchID string             `json:"match_id"`
	Kind    escrow.AccountKind `json:"kind"`
	Address string             `json:"address"`
	Digest  string             `json:"digest"`
	Data    json.RawMessage    `json:"data"`
	TakenAt time.Time          `json:"taken_at"`
}

type DelegateRequest struct {
	MatchID           string             `json:"match_id"`
	Kind              escrow.AccountKind `json:"kind"`
	Address           string             `json:"address"`
	Owner             string             `json:"owner"`
	CommitFrequencyMs int64              `json:"commit_frequency_ms"`
}

// SettlementTransport is the external subsystem that carries account state
// between the authoritative context and the rollup.
type SettlementTransport interface {
	Delegate(ctx context.Context, req DelegateRequest) error
	Commit(ctx context.Context, snapshots []AccountSnapshot) error
	Undelegate(ctx context.Context, snapshots []AccountSnapshot) error
}

// SettlementClient is the HTTP SettlementTransport.
type SettlementClient struct {
	client serviceClient
}

func NewSettlementClient(baseURL, token string, httpClient *http.Client) *SettlementClient {
	return &SettlementClient{client: serviceClient{
		Name:          "settlement",
		BaseURL:       baseURL,
		Token:         token,
		HTTPClient:    httpClient,
		MaxRetries:    4,
		RetryInterval: 250 * time.Millisecond,
	}}
}

func (c *SettlementClient) Delegate(ctx context.Context, req DelegateRequest) error {
	return c.client.do(ctx, http.MethodPost, "/delegate", nil, req, nil)
}

func (c *SettlementClient) Commit(ctx context.Context, snapshots []AccountSnapshot) error {
	return c.client.do(ctx, http.MethodPost, "/commit", nil, map[string]any{"snapshots": snapshots}, nil)
}

func (c *SettlementClient) Undelegate(ctx context.Context, snapshots []AccountSnapshot) error {
	return c.client.do(ctx, http.MethodPost, "/undelegate", nil, map[string]any{"snapshots": snapshots}, nil)
}

// MemorySettlementTransport records everything it is asked to carry.
type MemorySettlementTransport struct {
	mu          sync.Mutex
	Delegated   []DelegateRequest
	Committed   []AccountSnapshot
	Undelegated []AccountSnapshot
}

func NewMemorySettlementTransport() *MemorySettlementTransport {
	return &MemorySettlementTransport{}
}

func (t *MemorySettlementTransport) Delegate(ctx context.Context, req DelegateRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Delegated = append(t.Delegated, req)
	return nil
}

func (t *MemorySettlementTransport) Commit(ctx context.Context, snapshots []AccountSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Committed = append(t.Committed, snapshots...)
	return nil
}

func (t *MemorySettlementTransport) Undelegate(ctx context.Context, snapshots []AccountSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Undelegated = append(t.Undelegated, snapshots...)
	return nil
}

// Counts returns how many delegate, commit and undelegate items were carried.
func (t *MemorySettlementTransport) Counts() (delegated, committed, undelegated int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Delegated), len(t.Committed), len(t.Undelegated)
}
