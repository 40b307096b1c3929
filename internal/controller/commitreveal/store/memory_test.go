package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/controller/commitreveal/models"
	id "namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

var (
	alice = id.Address("0x00000000000000000000000000000000000000a1")
	bob   = id.Address("0x00000000000000000000000000000000000000b2")
)

type CommitStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *CommitStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestCommitStoreSuite(t *testing.T) {
	suite.Run(t, new(CommitStoreSuite))
}

func (s *CommitStoreSuite) put(committer id.Address, seed string) *models.Commit {
	commit := &models.Commit{
		Committer:   committer,
		Hash:        id.Keccak256([]byte(seed)),
		CommittedAt: time.Now(),
	}
	s.Require().NoError(s.store.Put(s.ctx, commit))
	return commit
}

func (s *CommitStoreSuite) TestPut() {
	s.Run("stores and finds", func() {
		commit := s.put(alice, "one")

		found, err := s.store.Find(s.ctx, alice)
		s.Require().NoError(err)
		s.Equal(commit.Hash, found.Hash)
		s.False(found.Revealed)
	})

	s.Run("rejects a hash pending for another committer", func() {
		commit := s.put(alice, "one")

		err := s.store.Put(s.ctx, &models.Commit{Committer: bob, Hash: commit.Hash, CommittedAt: time.Now()})
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("overwrite releases the previous hash", func() {
		first := s.put(alice, "one")
		s.put(alice, "two")

		err := s.store.Put(s.ctx, &models.Commit{Committer: bob, Hash: first.Hash, CommittedAt: time.Now()})
		s.Require().NoError(err)
	})

	s.Run("a revealed hash is free again", func() {
		commit := s.put(alice, "one")
		s.Require().NoError(s.store.MarkRevealed(s.ctx, alice))

		err := s.store.Put(s.ctx, &models.Commit{Committer: bob, Hash: commit.Hash, CommittedAt: time.Now()})
		s.Require().NoError(err)
	})
}

func (s *CommitStoreSuite) TestMarkRevealed() {
	s.Run("flips the flag", func() {
		s.put(alice, "one")
		s.Require().NoError(s.store.MarkRevealed(s.ctx, alice))

		found, err := s.store.Find(s.ctx, alice)
		s.Require().NoError(err)
		s.True(found.Revealed)
	})

	s.Run("unknown committer", func() {
		s.Require().ErrorIs(s.store.MarkRevealed(s.ctx, bob), sentinel.ErrNotFound)
		_, err := s.store.Find(s.ctx, bob)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
