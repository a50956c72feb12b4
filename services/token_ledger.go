// services/token_ledger.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TransferRequest moves Amount from one token account to another. The ledger
// deduplicates requests by IdempotencyKey.
type TransferRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         uint64 `json:"amount"`
	Authority      string `json:"authority"`
	Mint           string `json:"mint,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Memo           string `json:"memo,omitempty"`
}

type TransferReceipt struct {
	Reference string `json:"reference"`
}

// TokenLedger is the external ledger-transfer service. Every transfer is an
// atomic debit/credit.
type TokenLedger interface {
	CreateAccount(ctx context.Context, address, owner, mint string) error
	Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
	Balance(ctx context.Context, address string) (uint64, error)
	CloseAccount(ctx context.Context, address, destination string) error
}

type memoryAccount struct {
	owner   string
	mint    string
	balance uint64
}

// MemoryTokenLedger is an in-process TokenLedger for local runs.
type MemoryTokenLedger struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
	receipts map[string]*TransferReceipt
}

func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		accounts: make(map[string]*memoryAccount),
		receipts: make(map[string]*TransferReceipt),
	}
}

// Fund creates the account if needed and credits it. Local runs use it to
// seed participants' funding accounts.
func (l *MemoryTokenLedger) Fund(address, owner, mint string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		acct = &memoryAccount{owner: owner, mint: mint}
		l.accounts[address] = acct
	}
	acct.balance += amount
}

func (l *MemoryTokenLedger) CreateAccount(ctx context.Context, address, owner, mint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[address]; ok {
		return fmt.Errorf("account %s already exists", address)
	}
	l.accounts[address] = &memoryAccount{owner: owner, mint: mint}
	return nil
}

func (l *MemoryTokenLedger) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.receipts[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}
	from, ok := l.accounts[req.From]
	if !ok {
		return nil, fmt.Errorf("source account %s not found", req.From)
	}
	to, ok := l.accounts[req.To]
	if !ok {
		return nil, fmt.Errorf("destination account %s not found", req.To)
	}
	if from.owner != req.Authority {
		return nil, fmt.Errorf("authority %s does not own %s", req.Authority, req.From)
	}
	if from.mint != to.mint {
		return nil, fmt.Errorf("mint mismatch %s != %s", from.mint, to.mint)
	}
	if from.balance < req.Amount {
		return nil, fmt.Errorf("insufficient funds in %s", req.From)
	}
	from.balance -= req.Amount
	to.balance += req.Amount
	r := &TransferReceipt{Reference: uuid.NewString()}
	if req.IdempotencyKey != "" {
		l.receipts[req.IdempotencyKey] = r
	}
	return r, nil
}

func (l *MemoryTokenLedger) Balance(ctx context.Context, address string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		return 0, fmt.Errorf("account %s not found", address)
	}
	return acct.balance, nil
}

func (l *MemoryTokenLedger) CloseAccount(ctx context.Context, address, destination string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		return fmt.Errorf("account %s not found", address)
	}
	if acct.balance != 0 {
		return fmt.Errorf("account %s still holds %d", address, acct.balance)
	}
	delete(l.accounts, address)
	return nil
}
