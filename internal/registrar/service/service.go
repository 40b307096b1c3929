// Package service implements the ownership ledger: the authoritative
// token↔name↔owner registry, the controller ACL, domain delegation and the
// migration gate. Both registration protocols mutate state only through it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"namereg/internal/ens"
	"namereg/internal/events"
	"namereg/internal/name"
	regmetrics "namereg/internal/registrar/metrics"
	"namereg/internal/registrar/models"
	"namereg/internal/registrar/store"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// Config fixes the parent domain and the privileged identities.
type Config struct {
	// Owner is the administrator account for privileged operations.
	Owner id.Address
	// ServiceAccount is the identity this ledger acts as against the external
	// naming system; it must be the delegated owner of the parent node.
	ServiceAccount id.Address
	// Names are minted as <name>.<Domain>.<TopDomain>.
	TopDomain string
	Domain    string
	// BaseURI seeds the metadata URI cell; empty leaves token URIs empty.
	BaseURI string
}

// Service is the single source of truth for name ownership.
type Service struct {
	cfg      Config
	store    store.Store
	ens      ens.NameService
	events   *events.Recorder
	metrics  *regmetrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	baseNode id.Hash
}

// Option configures optional collaborators.
type Option func(*Service)

func WithMetrics(m *regmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New wires the ledger. The domain labels are immutable after construction.
func New(cfg Config, st store.Store, nameService ens.NameService, recorder *events.Recorder, opts ...Option) (*Service, error) {
	if cfg.TopDomain == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "top domain can not be empty")
	}
	if cfg.Domain == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "domain can not be empty")
	}
	s := &Service{
		cfg:      cfg,
		store:    st,
		ens:      nameService,
		events:   recorder,
		logger:   slog.Default(),
		tracer:   otel.Tracer("namereg/registrar"),
		baseNode: id.Namehash(cfg.Domain + "." + cfg.TopDomain),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.BaseURI != "" {
		if err := st.PutSetting(context.Background(), store.SettingBaseURI, cfg.BaseURI); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BaseNode is the naming-system node of the parent domain.
func (s *Service) BaseNode() id.Hash {
	return s.baseNode
}

// Register mints a name for beneficiary. Only controllers may call it, and
// only once the migration gate has flipped.
func (s *Service) Register(ctx context.Context, canonical name.Canonical, display string, beneficiary, caller id.Address) (id.Hash, error) {
	ctx, span := s.tracer.Start(ctx, "registrar.Register")
	defer span.End()
	start := time.Now()

	isController, err := s.store.IsController(ctx, caller)
	if err != nil {
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check controller")
	}
	if !isController {
		return id.ZeroHash, dErrors.New(dErrors.CodeForbidden, "only a controller can call this method")
	}

	finished, err := s.store.MigrationFinished(ctx)
	if err != nil {
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read migration gate")
	}
	if !finished {
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "the migration has not finished")
	}

	tokenID, err := s.mint(ctx, canonical, display, beneficiary, caller, requestcontext.Now(ctx))
	if err != nil {
		return id.ZeroHash, err
	}

	if s.metrics != nil {
		s.metrics.NamesRegistered.Inc()
		s.metrics.ObserveRegister(start)
	}
	return tokenID, nil
}

// MigrationItem is one historical record to import while the gate is open.
type MigrationItem struct {
	RawName     string
	Beneficiary id.Address
	CreatedAt   time.Time
}

// Migrate bulk-imports historical names. Administrator-only and refused once
// the gate has flipped; items bypass the controller ACL and keep their
// original timestamps.
func (s *Service) Migrate(ctx context.Context, items []MigrationItem, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}

	finished, err := s.store.MigrationFinished(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read migration gate")
	}
	if finished {
		return dErrors.New(dErrors.CodeConflict, "the migration has finished")
	}

	// The whole batch is validated before any item mints: a rejected import
	// must leave the ledger untouched.
	type prepared struct {
		canonical name.Canonical
		raw       string
		item      MigrationItem
	}
	seen := make(map[id.Hash]bool, len(items))
	batch := make([]prepared, 0, len(items))
	for _, item := range items {
		// Historical exports pad names to fixed-width byte arrays.
		raw := strings.TrimRight(item.RawName, "\x00")
		canonical := name.Canonical(name.Canonicalize(raw))
		label := name.LabelHash(canonical)
		if seen[label] {
			return dErrors.New(dErrors.CodeConflict, "subdomain already owned")
		}
		seen[label] = true
		if _, err := models.NewNameRecord(label, raw, item.Beneficiary, item.CreatedAt); err != nil {
			return err
		}
		if _, err := s.store.Find(ctx, label); err == nil {
			return dErrors.New(dErrors.CodeConflict, "subdomain already owned")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check name")
		}
		batch = append(batch, prepared{canonical: canonical, raw: raw, item: item})
	}

	for _, p := range batch {
		if _, err := s.mint(ctx, p.canonical, p.raw, p.item.Beneficiary, caller, p.item.CreatedAt); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.NamesMigrated.Inc()
		}
	}
	return nil
}

// FinishMigration flips the one-way gate from import mode to live
// registration. Repeat calls fail; the transition is irreversible.
func (s *Service) FinishMigration(ctx context.Context, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := s.store.FinishMigration(ctx); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeConflict, "the migration has finished")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to finish migration")
	}
	return s.events.Emit(ctx, events.TypeMigrationFinished, caller, nil)
}

// Transfer moves the token between accounts. It deliberately does not touch
// the naming system: after a bare transfer the token owner and the recorded
// resolution owner diverge until someone calls Reclaim.
func (s *Service) Transfer(ctx context.Context, tokenID id.Hash, from, to, caller id.Address) error {
	ctx, span := s.tracer.Start(ctx, "registrar.Transfer")
	defer span.End()

	if to.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "transfer to the zero address")
	}

	updated, err := s.store.Execute(ctx, tokenID,
		func(r *models.NameRecord) error {
			if r.Owner != from {
				return dErrors.New(dErrors.CodeConflict, "transfer of token that is not own")
			}
			isOperator, opErr := s.store.IsOperator(ctx, r.Owner, caller)
			if opErr != nil {
				return dErrors.Wrap(opErr, dErrors.CodeInternal, "failed to check operator")
			}
			if !r.CanBeMovedBy(caller, isOperator) {
				return dErrors.New(dErrors.CodeForbidden, "transfer caller is not owner nor approved")
			}
			return nil
		},
		func(r *models.NameRecord) {
			r.ApplyTransfer(to)
		},
	)
	if err != nil {
		return s.wrapRecordErr(err)
	}

	if s.metrics != nil {
		s.metrics.Transfers.Inc()
	}
	return s.events.Emit(ctx, events.TypeTransfer, caller, map[string]string{
		"token_id": tokenID.String(),
		"from":     from.String(),
		"to":       updated.Owner.String(),
	})
}

// Reclaim re-synchronizes the naming-system owner of the name's node to
// newOwner. This is the explicit repair for the divergence Transfer leaves.
func (s *Service) Reclaim(ctx context.Context, tokenID id.Hash, newOwner, caller id.Address) error {
	ctx, span := s.tracer.Start(ctx, "registrar.Reclaim")
	defer span.End()

	record, err := s.store.Find(ctx, tokenID)
	if err != nil {
		return s.wrapRecordErr(err)
	}
	isOperator, err := s.store.IsOperator(ctx, record.Owner, caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check operator")
	}
	if !record.CanBeMovedBy(caller, isOperator) {
		return dErrors.New(dErrors.CodeForbidden, "only an authorized account can change the subdomain settings")
	}

	if _, err := s.ens.SetSubnodeOwner(ctx, s.baseNode, tokenID, newOwner); err != nil {
		return s.wrapNamingErr(err)
	}

	if s.metrics != nil {
		s.metrics.Reclaims.Inc()
	}
	return s.events.Emit(ctx, events.TypeReclaimed, caller, map[string]string{
		"token_id": tokenID.String(),
		"owner":    newOwner.String(),
	})
}

// Approve sets the per-token delegate allowed to move the token.
func (s *Service) Approve(ctx context.Context, tokenID id.Hash, approved, caller id.Address) error {
	_, err := s.store.Execute(ctx, tokenID,
		func(r *models.NameRecord) error {
			isOperator, opErr := s.store.IsOperator(ctx, r.Owner, caller)
			if opErr != nil {
				return dErrors.Wrap(opErr, dErrors.CodeInternal, "failed to check operator")
			}
			if caller != r.Owner && !isOperator {
				return dErrors.New(dErrors.CodeForbidden, "approve caller is not owner nor approved for all")
			}
			return nil
		},
		func(r *models.NameRecord) {
			r.Approved = approved
		},
	)
	if err != nil {
		return s.wrapRecordErr(err)
	}
	return nil
}

// SetApprovalForAll lets caller authorize operator over every token it owns.
func (s *Service) SetApprovalForAll(ctx context.Context, operator id.Address, approved bool, caller id.Address) error {
	if operator == caller {
		return dErrors.New(dErrors.CodeBadRequest, "approve to caller")
	}
	if err := s.store.SetOperator(ctx, caller, operator, approved); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set operator")
	}
	return nil
}

// AddController authorizes addr to mint names.
func (s *Service) AddController(ctx context.Context, addr, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	if err := s.store.AddController(ctx, addr); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "the controller was already added")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add controller")
	}
	return s.events.Emit(ctx, events.TypeControllerAdded, caller, map[string]string{
		"controller": addr.String(),
	})
}

// RemoveController revokes addr's minting authorization.
func (s *Service) RemoveController(ctx context.Context, addr, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := s.store.RemoveController(ctx, addr); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeConflict, "the controller is already disabled")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove controller")
	}
	return s.events.Emit(ctx, events.TypeControllerRemoved, caller, map[string]string{
		"controller": addr.String(),
	})
}

// IsController reports whether addr may mint names.
func (s *Service) IsController(ctx context.Context, addr id.Address) (bool, error) {
	return s.store.IsController(ctx, addr)
}

// ReclaimDomain re-asserts the service account as the naming-system owner of
// a domain under the top domain. Housekeeping over the parent delegation.
func (s *Service) ReclaimDomain(ctx context.Context, label string, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if label == "" {
		label = s.cfg.Domain
	}
	node := id.Namehash(label + "." + s.cfg.TopDomain)
	if err := s.ens.SetOwner(ctx, node, s.cfg.ServiceAccount); err != nil {
		return s.wrapNamingErr(err)
	}
	return nil
}

// TransferDomainOwnership hands the naming-system node of a parent domain to
// another account. After this the ledger can no longer mint under it.
func (s *Service) TransferDomainOwnership(ctx context.Context, to id.Address, label string, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	if label == "" {
		label = s.cfg.Domain
	}
	node := id.Namehash(label + "." + s.cfg.TopDomain)
	if err := s.ens.SetOwner(ctx, node, to); err != nil {
		return s.wrapNamingErr(err)
	}
	return nil
}

// UpdateBaseURI changes the metadata URI prefix for token URIs.
func (s *Service) UpdateBaseURI(ctx context.Context, uri string, caller id.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	current, err := s.store.GetSetting(ctx, store.SettingBaseURI)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read base uri")
	}
	if current == uri {
		return dErrors.New(dErrors.CodeConflict, "base uri should be different from old")
	}
	if err := s.store.PutSetting(ctx, store.SettingBaseURI, uri); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update base uri")
	}
	return s.events.Emit(ctx, events.TypeBaseURIChanged, caller, map[string]string{
		"base_uri": uri,
	})
}

// UpdateRegistry repoints the naming-system reference.
func (s *Service) UpdateRegistry(ctx context.Context, addr id.Address, caller id.Address) error {
	return s.updateAddressCell(ctx, store.SettingRegistry, addr, caller,
		"new registry should be different from old", events.TypeRegistryChanged)
}

// UpdateBase repoints the payment-token reference.
func (s *Service) UpdateBase(ctx context.Context, addr id.Address, caller id.Address) error {
	return s.updateAddressCell(ctx, store.SettingBase, addr, caller,
		"new base should be different from old", events.TypeBaseChanged)
}

// SetResolver sets the resolver of the parent domain's node.
func (s *Service) SetResolver(ctx context.Context, addr id.Address, caller id.Address) error {
	if err := s.updateAddressCell(ctx, store.SettingResolver, addr, caller,
		"new resolver should be different from old", events.TypeResolverChanged); err != nil {
		return err
	}
	if err := s.ens.SetResolver(ctx, s.baseNode, addr); err != nil {
		return s.wrapNamingErr(err)
	}
	return nil
}

// GetTokenID resolves a raw name (any casing) to its token id.
func (s *Service) GetTokenID(ctx context.Context, rawName string) (id.Hash, error) {
	tokenID := name.TokenID(rawName)
	if _, err := s.store.Find(ctx, tokenID); err != nil {
		return id.ZeroHash, s.wrapRecordErr(err)
	}
	return tokenID, nil
}

// GetOwnerOf resolves a raw name (any casing) to its current token owner.
func (s *Service) GetOwnerOf(ctx context.Context, rawName string) (id.Address, error) {
	record, err := s.store.Find(ctx, name.TokenID(rawName))
	if err != nil {
		return "", s.wrapRecordErr(err)
	}
	return record.Owner, nil
}

// Available reports whether a name (or any case permutation of it) can still
// be claimed.
func (s *Service) Available(ctx context.Context, rawName string) (bool, error) {
	_, err := s.store.Find(ctx, name.TokenID(rawName))
	if err == nil {
		return false, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return true, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check availability")
}

// TokenURI renders the metadata URI preserving the display casing.
func (s *Service) TokenURI(ctx context.Context, tokenID id.Hash) (string, error) {
	record, err := s.store.Find(ctx, tokenID)
	if err != nil {
		return "", s.wrapRecordErr(err)
	}
	baseURI, err := s.store.GetSetting(ctx, store.SettingBaseURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read base uri")
	}
	return name.FormatURI(baseURI, record.DisplayName), nil
}

// Tokens lists the token ids owned by an account.
func (s *Service) Tokens(ctx context.Context, owner id.Address) ([]id.Hash, error) {
	return s.store.ListByOwner(ctx, owner)
}

func (s *Service) mint(ctx context.Context, canonical name.Canonical, display string, beneficiary, caller id.Address, createdAt time.Time) (id.Hash, error) {
	label := name.LabelHash(canonical)

	// The ledger can only delegate children while it owns the parent node.
	parentOwner, err := s.ens.Owner(ctx, s.baseNode)
	if err != nil {
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read domain owner")
	}
	if parentOwner != s.cfg.ServiceAccount {
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "the contract does not own the domain")
	}

	record, err := models.NewNameRecord(label, display, beneficiary, createdAt)
	if err != nil {
		return id.ZeroHash, err
	}

	// Uniqueness first, then delegation, then the record: a failed naming
	// call must not leave an undelegated record behind. Create remains the
	// authoritative uniqueness check against concurrent mints.
	if _, err := s.store.Find(ctx, label); err == nil {
		return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "subdomain already owned")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check name")
	}

	if _, err := s.ens.SetSubnodeOwner(ctx, s.baseNode, label, beneficiary); err != nil {
		return id.ZeroHash, s.wrapNamingErr(err)
	}

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return id.ZeroHash, dErrors.New(dErrors.CodeConflict, "subdomain already owned")
		}
		return id.ZeroHash, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create name record")
	}

	if err := s.events.Emit(ctx, events.TypeNameRegistered, caller, map[string]string{
		"name":        display,
		"token_id":    label.String(),
		"beneficiary": beneficiary.String(),
	}); err != nil {
		return id.ZeroHash, err
	}

	s.logger.InfoContext(ctx, "name registered",
		"name", display,
		"token_id", label.String(),
		"beneficiary", beneficiary.String(),
		"caller", caller.String(),
	)
	return label, nil
}

func (s *Service) requireOwner(caller id.Address) error {
	if caller != s.cfg.Owner {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the owner")
	}
	return nil
}

func (s *Service) updateAddressCell(ctx context.Context, key string, addr, caller id.Address, sameValueReason string, eventType events.Type) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if addr.IsZero() || addr == s.cfg.ServiceAccount {
		return dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	current, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read setting")
	}
	if current == addr.String() {
		return dErrors.New(dErrors.CodeConflict, sameValueReason)
	}
	if err := s.store.PutSetting(ctx, key, addr.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update setting")
	}
	return s.events.Emit(ctx, eventType, caller, map[string]string{
		"value": addr.String(),
	})
}

func (s *Service) wrapRecordErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "the subdomain is not registered")
	}
	if dErrors.HasCode(err, dErrors.CodeForbidden) || dErrors.HasCode(err, dErrors.CodeConflict) ||
		dErrors.HasCode(err, dErrors.CodeBadRequest) || dErrors.HasCode(err, dErrors.CodeNotFound) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
}

func (s *Service) wrapNamingErr(err error) error {
	if errors.Is(err, ens.ErrNotNodeOwner) {
		return dErrors.New(dErrors.CodeConflict, "the contract does not own the domain")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "naming system call failed")
}
