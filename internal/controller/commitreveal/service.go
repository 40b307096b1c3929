// Package commitreveal implements the two-phase registration protocol: an
// opaque commitment first, then a reveal after a minimum delay. An observer
// of pending commits learns nothing usable before the delay elapses, which
// is what defeats front-running.
package commitreveal

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"namereg/internal/controller/commitreveal/models"
	"namereg/internal/controller/commitreveal/store"
	ctrlmetrics "namereg/internal/controller/metrics"
	"namereg/internal/events"
	"namereg/internal/fees"
	"namereg/internal/name"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// Registrar is the slice of the ownership ledger this protocol needs.
type Registrar interface {
	Register(ctx context.Context, canonical name.Canonical, display string, beneficiary, caller id.Address) (id.Hash, error)
}

// Config parametrizes one protocol instance.
type Config struct {
	// InstanceID is this controller's identity: it is bound into every commit
	// hash and is the caller the ledger sees on Register.
	InstanceID id.Address
	// Price is the fee per registration, in base token units.
	Price *big.Int
	// RevealDelay is the minimum commit age before a reveal is accepted.
	RevealDelay time.Duration
	Rules       name.Rules
}

// Service runs the protocol over a commit store, the fee settlement and the
// ledger.
type Service struct {
	cfg        Config
	store      store.Store
	registrar  Registrar
	settlement *fees.Settlement
	events     *events.Recorder
	metrics    *ctrlmetrics.Metrics
	logger     *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *ctrlmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(cfg Config, st store.Store, registrar Registrar, settlement *fees.Settlement, recorder *events.Recorder, opts ...Option) (*Service, error) {
	if cfg.InstanceID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "instance id can not be the zero address")
	}
	if cfg.RevealDelay <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "reveal delay must be positive")
	}
	if cfg.Rules == (name.Rules{}) {
		cfg.Rules = name.DefaultRules()
	}
	s := &Service{
		cfg:        cfg,
		store:      st,
		registrar:  registrar,
		settlement: settlement,
		events:     recorder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Price is the registration fee of this instance.
func (s *Service) Price() *big.Int {
	return new(big.Int).Set(s.cfg.Price)
}

// Hash derives the commitment for a registration intent. The instance id
// blocks cross-instance replay and the caller binding blocks anyone else from
// revealing a stolen preimage.
func (s *Service) Hash(rawName string, beneficiary id.Address, salt id.Hash, caller id.Address) id.Hash {
	return id.Keccak256(
		s.cfg.InstanceID.Bytes(),
		caller.Bytes(),
		[]byte(rawName),
		beneficiary.Bytes(),
		salt.Bytes(),
	)
}

// Commit stores the caller's registration intent. A caller's previous
// unrevealed commit is silently discarded; a hash still pending for anyone is
// rejected.
func (s *Service) Commit(ctx context.Context, hash id.Hash, caller id.Address) error {
	if hash.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "commit hash can not be zero")
	}

	commit := &models.Commit{
		Committer:   caller,
		Hash:        hash,
		CommittedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Put(ctx, commit); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "there is already a commit for the same hash")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store commit")
	}

	if s.metrics != nil {
		s.metrics.Commits.Inc()
	}
	return s.events.Emit(ctx, events.TypeCommittedName, caller, map[string]string{
		"hash": hash.String(),
	})
}

// Reveal opens the caller's commitment and, when everything checks out,
// registers the name and charges the fee. The commit is consumed only after
// the registration and the charge both succeed, so a failed reveal can be
// retried.
func (s *Service) Reveal(ctx context.Context, rawName string, beneficiary id.Address, salt id.Hash, caller id.Address) (id.Hash, error) {
	commit, err := s.store.Find(ctx, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.ZeroHash, dErrors.New(dErrors.CodeNotFound, "the commit does not exist")
		}
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load commit")
	}

	now := requestcontext.Now(ctx)
	if now.Before(commit.ReadyAt(s.cfg.RevealDelay)) {
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "the commit is not ready to be revealed")
	}

	if s.Hash(rawName, beneficiary, salt, caller) != commit.Hash {
		return id.ZeroHash, dErrors.New(dErrors.CodeBadRequest, "the reveal does not match the commit")
	}

	if commit.Revealed {
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "the commit was already revealed")
	}

	canonical, err := name.Validate(rawName, s.cfg.Rules)
	if err != nil {
		return id.ZeroHash, err
	}

	// Fee preconditions are checked before the mint and the debit happens
	// after it: losing the name race (taken during the delay) must not cost
	// the revealer anything.
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

	if err := s.store.MarkRevealed(ctx, caller); err != nil {
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume commit")
	}

	if err := s.events.Emit(ctx, events.TypeRevealedName, caller, map[string]string{
		"hash": commit.Hash.String(),
		"name": rawName,
	}); err != nil {
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
		s.metrics.Reveals.Inc()
		s.metrics.Purchases.WithLabelValues("commit_reveal").Inc()
	}
	s.logger.InfoContext(ctx, "name revealed",
		"name", rawName,
		"token_id", tokenID.String(),
		"beneficiary", beneficiary.String(),
		"caller", caller.String(),
	)
	return tokenID, nil
}
