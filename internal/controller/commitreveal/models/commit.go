package models

import (
	"time"

	id "namereg/pkg/domain"
)

// Commit is one account's outstanding (or consumed) registration intent. The
// hash is opaque until reveal; only its uniqueness is enforced before then.
type Commit struct {
	Committer   id.Address `json:"committer"`
	Hash        id.Hash    `json:"hash"`
	CommittedAt time.Time  `json:"committed_at"`
	Revealed    bool       `json:"revealed"`
}

// ReadyAt is the earliest instant the commit may be revealed.
func (c *Commit) ReadyAt(delay time.Duration) time.Time {
	return c.CommittedAt.Add(delay)
}
