// Package fees settles registration charges against the external payment
// token. Both registration protocols charge through here; the only variation
// is whether the fee is destroyed or forwarded to a collector.
package fees

import (
	"context"
	"math/big"
	"sync"

	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// Settlement debits registration fees from payers. The account is the
// identity the payer must have pre-authorized as spender.
type Settlement struct {
	token   Token
	account id.Address

	mu        sync.RWMutex
	collector id.Address
}

// New builds a burning settlement: fees move to account and are destroyed.
func New(token Token, account id.Address) *Settlement {
	return &Settlement{token: token, account: account}
}

// NewWithCollector builds a forwarding settlement: fees move straight to the
// collector. A zero collector falls back to burning.
func NewWithCollector(token Token, account, collector id.Address) *Settlement {
	return &Settlement{token: token, account: account, collector: collector}
}

// Collector returns the current fee collector (zero when burning).
func (s *Settlement) Collector() id.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collector
}

// SetCollector redirects future fees. Authorization is the caller's concern.
func (s *Settlement) SetCollector(collector id.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = collector
}

// Verify checks the charge preconditions without moving funds. Callers that
// must stay effect-free on failure verify first, perform their own mutation,
// and only then Charge.
func (s *Settlement) Verify(ctx context.Context, payer id.Address, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return nil
	}

	balance, err := s.token.BalanceOf(ctx, payer)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payer balance")
	}
	if balance.Cmp(price) < 0 {
		return dErrors.New(dErrors.CodeConflict, "insufficient funds")
	}

	allowance, err := s.token.Allowance(ctx, payer, s.account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payer allowance")
	}
	if allowance.Cmp(price) < 0 {
		return dErrors.New(dErrors.CodeConflict,
			"the contract is not authorized to use the accepted token on sender behalf")
	}
	return nil
}

// Charge debits price from payer. The two precondition failures carry the
// protocol's canonical reasons; anything past them is an internal fault
// because the checks and the debit are ordered under the global sequencer.
func (s *Settlement) Charge(ctx context.Context, payer id.Address, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return nil
	}
	if err := s.Verify(ctx, payer, price); err != nil {
		return err
	}

	collector := s.Collector()
	if !collector.IsZero() {
		if err := s.token.TransferFrom(ctx, s.account, payer, collector, price); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to forward fee")
		}
		return nil
	}

	if err := s.token.TransferFrom(ctx, s.account, payer, s.account, price); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect fee")
	}
	if err := s.token.Burn(ctx, s.account, price); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to burn fee")
	}
	return nil
}
