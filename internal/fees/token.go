package fees

import (
	"context"
	"errors"
	"math/big"
	"sync"

	id "namereg/pkg/domain"
)

// Token is the fungible payment token at its interface boundary: the four
// calls settlement needs, nothing more. Balances are in the token's smallest
// unit and exceed uint64 range, hence big.Int throughout.
type Token interface {
	BalanceOf(ctx context.Context, account id.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender id.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, spender, from, to id.Address, amount *big.Int) error
	Burn(ctx context.Context, account id.Address, amount *big.Int) error
}

// Token-level failures. Settlement checks balances and allowances up front,
// so these only surface on racing callers.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// InMemoryToken is a ledger-backed token for dev and tests.
type InMemoryToken struct {
	mu         sync.RWMutex
	balances   map[id.Address]*big.Int
	allowances map[id.Address]map[id.Address]*big.Int
}

func NewInMemoryToken() *InMemoryToken {
	return &InMemoryToken{
		balances:   make(map[id.Address]*big.Int),
		allowances: make(map[id.Address]map[id.Address]*big.Int),
	}
}

// Mint credits an account. Test and seed setup only.
func (t *InMemoryToken) Mint(account id.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = new(big.Int).Add(t.balanceLocked(account), amount)
}

// Approve lets spender move up to amount from owner's balance.
func (t *InMemoryToken) Approve(owner, spender id.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[id.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *InMemoryToken) BalanceOf(_ context.Context, account id.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.balanceLocked(account)), nil
}

func (t *InMemoryToken) Allowance(_ context.Context, owner, spender id.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.allowanceLocked(owner, spender)), nil
}

func (t *InMemoryToken) TransferFrom(_ context.Context, spender, from, to id.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balanceLocked(from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if spender != from && t.allowanceLocked(from, spender).Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if spender != from {
		t.allowances[from][spender] = new(big.Int).Sub(t.allowanceLocked(from, spender), amount)
	}
	t.balances[from] = new(big.Int).Sub(t.balanceLocked(from), amount)
	t.balances[to] = new(big.Int).Add(t.balanceLocked(to), amount)
	return nil
}

func (t *InMemoryToken) Burn(_ context.Context, account id.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balanceLocked(account).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[account] = new(big.Int).Sub(t.balanceLocked(account), amount)
	return nil
}

func (t *InMemoryToken) balanceLocked(account id.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return big.NewInt(0)
}

func (t *InMemoryToken) allowanceLocked(owner, spender id.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return big.NewInt(0)
}
