// Package store persists commit-reveal state. One commit per committer;
// a global index of unrevealed hashes enforces hash uniqueness across all
// committers.
package store

import (
	"context"

	"namereg/internal/controller/commitreveal/models"
	id "namereg/pkg/domain"
)

// Store is the commit persistence contract.
//
// Put replaces the committer's previous unrevealed commit (the old intent is
// discarded) but returns sentinel.ErrAlreadyUsed when the new hash is still
// pending for any committer. Find returns sentinel.ErrNotFound for unknown
// committers; so does MarkRevealed.
type Store interface {
	Put(ctx context.Context, commit *models.Commit) error
	Find(ctx context.Context, committer id.Address) (*models.Commit, error)
	MarkRevealed(ctx context.Context, committer id.Address) error
}
