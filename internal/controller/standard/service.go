// Package standard implements the immediate registration protocol. Instead of
// a commit-reveal round trip it caps the priority fee a registration may
// carry, which removes the profit in racing someone else's pending request.
package standard

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	ctrlmetrics "namereg/internal/controller/metrics"
	"namereg/internal/events"
	"namereg/internal/fees"
	"namereg/internal/name"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Gas price bounds in wei. The ceiling can be tuned at runtime but never
// below the floor; a floor of zero would disable the protocol's only
// anti-front-running property.
const (
	MinGasPrice        = 1_000_000_000
	DefaultMaxGasPrice = 20_000_000_000
)

// Registrar is the slice of the ownership ledger this protocol needs.
type Registrar interface {
	Register(ctx context.Context, canonical name.Canonical, display string, beneficiary, caller id.Address) (id.Hash, error)
}

// Config parametrizes one protocol instance.
type Config struct {
	// Owner is the administrator account for the tunables below.
	Owner id.Address
	// InstanceID is the caller identity the ledger sees on Register.
	InstanceID id.Address
	// Price is the fee per registration, in base token units.
	Price *big.Int
	// MaxGasPrice is the initial ceiling in wei; zero means the default.
	MaxGasPrice uint64
	Rules       name.Rules
}

// Service registers names in a single call, gated on the request's gas price.
type Service struct {
	cfg        Config
	registrar  Registrar
	settlement *fees.Settlement
	events     *events.Recorder
	metrics    *ctrlmetrics.Metrics
	logger     *slog.Logger

	mu          sync.RWMutex
	maxGasPrice uint64
}

type Option func(*Service)

func WithMetrics(m *ctrlmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(cfg Config, registrar Registrar, settlement *fees.Settlement, recorder *events.Recorder, opts ...Option) (*Service, error) {
	if cfg.InstanceID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "instance id can not be the zero address")
	}
	if cfg.MaxGasPrice == 0 {
		cfg.MaxGasPrice = DefaultMaxGasPrice
	}
	if cfg.MaxGasPrice < MinGasPrice {
		return nil, dErrors.New(dErrors.CodeBadRequest, "max gas price should be greater than or equal to 1 gwei")
	}
	if cfg.Rules == (name.Rules{}) {
		cfg.Rules = name.DefaultRules()
	}
	s := &Service{
		cfg:         cfg,
		registrar:   registrar,
		settlement:  settlement,
		events:      recorder,
		logger:      slog.Default(),
		maxGasPrice: cfg.MaxGasPrice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxGasPrice is the current ceiling in wei.
func (s *Service) MaxGasPrice() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxGasPrice
}

// Price is the registration fee of this instance.
func (s *Service) Price() *big.Int {
	return new(big.Int).Set(s.cfg.Price)
}

// Register validates, charges and mints in one call. The request's gas price
// (from the request context) must not exceed the ceiling.
func (s *Service) Register(ctx context.Context, rawName string, beneficiary, caller id.Address) (id.Hash, error) {
	if gasPrice := requestcontext.GasPrice(ctx); gasPrice > s.MaxGasPrice() {
		if s.metrics != nil {
			s.metrics.GasPriceRejections.Inc()
		}
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "maximum gas price allowed exceeded")
	}

	canonical, err := name.Validate(rawName, s.cfg.Rules)
	if err != nil {
		return id.ZeroHash, err
	}

	// Preconditions first, debit after the mint: a rejected registration must
	// not cost the caller anything.
	if err := s.settlement.Verify(ctx, caller, s.cfg.Price); err != nil {
		return id.ZeroHash, err
	}

	tokenID, err := s.registrar.Register(ctx, canonical, rawName, beneficiary, s.cfg.InstanceID)
	if err != nil {
		return id.ZeroHash, err
	}

	if err := s.settlement.Charge(ctx, caller, s.cfg.Price); err != nil {
		return id.ZeroHash, err
	}

	if err := s.events.Emit(ctx, events.TypeNameBought, caller, map[string]string{
		"name":        rawName,
		"beneficiary": beneficiary.String(),
		"price":       s.cfg.Price.String(),
	}); err != nil {
		return id.ZeroHash, err
	}

	if s.metrics != nil {
		s.metrics.Purchases.WithLabelValues("standard").Inc()
	}
	s.logger.InfoContext(ctx, "name bought",
		"name", rawName,
		"token_id", tokenID.String(),
		"beneficiary", beneficiary.String(),
		"caller", caller.String(),
	)
	return tokenID, nil
}

// UpdateMaxGasPrice tunes the ceiling. Administrator only; the floor holds.
func (s *Service) UpdateMaxGasPrice(ctx context.Context, newMax uint64, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if newMax < MinGasPrice {
		return dErrors.New(dErrors.CodeBadRequest, "max gas price should be greater than or equal to 1 gwei")
	}

	s.mu.Lock()
	old := s.maxGasPrice
	if newMax == old {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "max gas price should be different from the current one")
	}
	s.maxGasPrice = newMax
	s.mu.Unlock()

	return s.events.Emit(ctx, events.TypeMaxGasPriceSet, caller, map[string]string{
		"old": formatWei(old),
		"new": formatWei(newMax),
	})
}

// SetFeeCollector redirects future fees to addr; the zero address reverts to
// burning. Administrator only.
func (s *Service) SetFeeCollector(ctx context.Context, addr, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if addr == s.settlement.Collector() {
		return dErrors.New(dErrors.CodeConflict, "fee collector should be different from the current one")
	}
	s.settlement.SetCollector(addr)

	return s.events.Emit(ctx, events.TypeFeeCollectorSet, caller, map[string]string{
		"collector": addr.String(),
	})
}

func (s *Service) requireOwner(caller id.Address) error {
	if caller != s.cfg.Owner {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the owner")
	}
	return nil
}

func formatWei(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}
