// Package store persists the ownership ledger: name records, the controller
// ACL, operator approvals, the migration gate and the configuration cells.
//
// Implementations return pkg/platform/sentinel errors; the service translates
// them into the protocol's canonical reasons. The interface is what lets the
// in-memory and Postgres backings swap without touching domain logic.
package store

import (
	"context"

	"namereg/internal/registrar/models"
	id "namereg/pkg/domain"
)

// Setting keys for the registrar's configuration cells.
const (
	SettingBaseURI  = "base_uri"
	SettingRegistry = "registry"
	SettingBase     = "base"
	SettingResolver = "resolver"
)

type Store interface {
	// Create inserts a new record. Returns sentinel.ErrAlreadyUsed when the
	// token id exists (canonical-name uniqueness).
	Create(ctx context.Context, record *models.NameRecord) error
	// Find returns the record or sentinel.ErrNotFound.
	Find(ctx context.Context, tokenID id.Hash) (*models.NameRecord, error)
	// Execute atomically runs validate then mutate against the stored record,
	// holding the lock (mutex or FOR UPDATE) across both. Returns the updated
	// record, a validate error, or sentinel.ErrNotFound.
	Execute(ctx context.Context, tokenID id.Hash,
		validate func(*models.NameRecord) error,
		mutate func(*models.NameRecord)) (*models.NameRecord, error)
	// ListByOwner returns the token ids currently owned by owner.
	ListByOwner(ctx context.Context, owner id.Address) ([]id.Hash, error)

	// Controller ACL. Redundant adds/removes are errors, not no-ops.
	AddController(ctx context.Context, addr id.Address) error    // sentinel.ErrAlreadyUsed
	RemoveController(ctx context.Context, addr id.Address) error // sentinel.ErrNotFound
	IsController(ctx context.Context, addr id.Address) (bool, error)

	// Migration gate: one-way false→true.
	MigrationFinished(ctx context.Context) (bool, error)
	FinishMigration(ctx context.Context) error // sentinel.ErrInvalidState when already finished

	// Operator approvals (owner → operator, all tokens).
	SetOperator(ctx context.Context, owner, operator id.Address, approved bool) error
	IsOperator(ctx context.Context, owner, operator id.Address) (bool, error)

	// Configuration cells. Get returns "" with no error for unset keys.
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}
