package models

import (
	"time"

	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// NameRecord is the aggregate for one claimed name.
//
// Invariants:
//   - TokenID is the keccak label hash of the canonical (lowercased) name
//   - DisplayName preserves the original casing. Live registrations are
//     validator-capped at 15 bytes; the 32-byte bound here exists for
//     migrated names, which arrive as fixed-width 32-byte arrays
//   - Owner is never the zero address
//   - Records are never deleted; names are not released
//
// Approved is the per-token delegate; it is cleared on every transfer, the
// same way the underlying token standard behaves.
type NameRecord struct {
	TokenID     id.Hash    `json:"token_id"`
	DisplayName string     `json:"display_name"`
	Owner       id.Address `json:"owner"`
	Approved    id.Address `json:"approved,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewNameRecord validates invariants and builds a record.
func NewNameRecord(tokenID id.Hash, displayName string, owner id.Address, createdAt time.Time) (*NameRecord, error) {
	if tokenID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token id cannot be zero")
	}
	if displayName == "" || len(displayName) > 32 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name must be between 1 and 32 bytes")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner cannot be the zero address")
	}
	return &NameRecord{
		TokenID:     tokenID,
		DisplayName: displayName,
		Owner:       owner,
		CreatedAt:   createdAt,
	}, nil
}

// CanBeMovedBy reports whether caller may transfer or reclaim the token:
// the owner, the per-token delegate, or an account the owner approved as
// operator.
func (r *NameRecord) CanBeMovedBy(caller id.Address, isOperator bool) bool {
	return caller == r.Owner || caller == r.Approved || isOperator
}

// ApplyTransfer moves ownership and clears the per-token delegate.
func (r *NameRecord) ApplyTransfer(to id.Address) {
	r.Owner = to
	r.Approved = ""
}
