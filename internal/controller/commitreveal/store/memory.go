package store

import (
	"context"
	"sync"

	"namereg/internal/controller/commitreveal/models"
	id "namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

// InMemory keeps commits in process for unit tests and single-node runs.
type InMemory struct {
	mu      sync.Mutex
	commits map[id.Address]*models.Commit
	// pending indexes unrevealed hashes back to their committer.
	pending map[id.Hash]id.Address
}

func NewInMemory() *InMemory {
	return &InMemory{
		commits: make(map[id.Address]*models.Commit),
		pending: make(map[id.Hash]id.Address),
	}
}

func (s *InMemory) Put(_ context.Context, commit *models.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.pending[commit.Hash]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if old, ok := s.commits[commit.Committer]; ok && !old.Revealed {
		delete(s.pending, old.Hash)
	}
	clone := *commit
	s.commits[commit.Committer] = &clone
	s.pending[commit.Hash] = commit.Committer
	return nil
}

func (s *InMemory) Find(_ context.Context, committer id.Address) (*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	commit, ok := s.commits[committer]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *commit
	return &clone, nil
}

func (s *InMemory) MarkRevealed(_ context.Context, committer id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	commit, ok := s.commits[committer]
	if !ok {
		return sentinel.ErrNotFound
	}
	commit.Revealed = true
	delete(s.pending, commit.Hash)
	return nil
}
