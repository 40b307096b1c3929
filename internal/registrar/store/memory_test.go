package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/name"
	"namereg/internal/registrar/models"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
)

var (
	alice = id.Address("0x00000000000000000000000000000000000000a1")
	bob   = id.Address("0x00000000000000000000000000000000000000b2")
)

type LedgerStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *LedgerStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestLedgerStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerStoreSuite))
}

func (s *LedgerStoreSuite) newRecord(display string, owner id.Address) *models.NameRecord {
	record, err := models.NewNameRecord(name.TokenID(display), display, owner, time.Now())
	s.Require().NoError(err)
	return record
}

func (s *LedgerStoreSuite) TestCreateAndFind() {
	s.Run("creates and finds a record", func() {
		record := s.newRecord("nacho", alice)
		s.Require().NoError(s.store.Create(s.ctx, record))

		found, err := s.store.Find(s.ctx, record.TokenID)
		s.Require().NoError(err)
		s.Equal("nacho", found.DisplayName)
		s.Equal(alice, found.Owner)
	})

	s.Run("returns ErrNotFound for unknown token", func() {
		_, err := s.store.Find(s.ctx, name.TokenID("ghost"))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects a duplicate token id", func() {
		record := s.newRecord("dup", alice)
		s.Require().NoError(s.store.Create(s.ctx, record))

		again := s.newRecord("dup", bob)
		s.Require().ErrorIs(s.store.Create(s.ctx, again), sentinel.ErrAlreadyUsed)
	})
}

func (s *LedgerStoreSuite) TestExecute() {
	s.Run("applies validate-then-mutate and reindexes ownership", func() {
		record := s.newRecord("mover", alice)
		s.Require().NoError(s.store.Create(s.ctx, record))

		updated, err := s.store.Execute(s.ctx, record.TokenID,
			func(r *models.NameRecord) error { return nil },
			func(r *models.NameRecord) { r.ApplyTransfer(bob) },
		)
		s.Require().NoError(err)
		s.Equal(bob, updated.Owner)

		aliceTokens, err := s.store.ListByOwner(s.ctx, alice)
		s.Require().NoError(err)
		s.Empty(aliceTokens)

		bobTokens, err := s.store.ListByOwner(s.ctx, bob)
		s.Require().NoError(err)
		s.Len(bobTokens, 1)
	})

	s.Run("validate failure leaves the record untouched", func() {
		record := s.newRecord("frozen", alice)
		s.Require().NoError(s.store.Create(s.ctx, record))

		_, err := s.store.Execute(s.ctx, record.TokenID,
			func(r *models.NameRecord) error {
				return dErrors.New(dErrors.CodeForbidden, "nope")
			},
			func(r *models.NameRecord) { r.ApplyTransfer(bob) },
		)
		s.Require().Error(err)

		found, err := s.store.Find(s.ctx, record.TokenID)
		s.Require().NoError(err)
		s.Equal(alice, found.Owner)
	})

	s.Run("unknown token yields ErrNotFound", func() {
		_, err := s.store.Execute(s.ctx, name.TokenID("ghost"),
			func(r *models.NameRecord) error { return nil },
			func(r *models.NameRecord) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *LedgerStoreSuite) TestControllers() {
	s.Run("add, check, remove", func() {
		s.Require().NoError(s.store.AddController(s.ctx, alice))

		ok, err := s.store.IsController(s.ctx, alice)
		s.Require().NoError(err)
		s.True(ok)

		s.Require().NoError(s.store.RemoveController(s.ctx, alice))

		ok, err = s.store.IsController(s.ctx, alice)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("redundant add fails", func() {
		s.Require().NoError(s.store.AddController(s.ctx, bob))
		s.Require().ErrorIs(s.store.AddController(s.ctx, bob), sentinel.ErrAlreadyUsed)
	})

	s.Run("redundant remove fails", func() {
		s.Require().ErrorIs(s.store.RemoveController(s.ctx, id.Address("0x00000000000000000000000000000000000000c3")), sentinel.ErrNotFound)
	})
}

func (s *LedgerStoreSuite) TestMigrationGate() {
	finished, err := s.store.MigrationFinished(s.ctx)
	s.Require().NoError(err)
	s.False(finished)

	s.Require().NoError(s.store.FinishMigration(s.ctx))

	finished, err = s.store.MigrationFinished(s.ctx)
	s.Require().NoError(err)
	s.True(finished)

	// One-way: the second flip is an invalid state, not a no-op.
	s.Require().ErrorIs(s.store.FinishMigration(s.ctx), sentinel.ErrInvalidState)
}

func (s *LedgerStoreSuite) TestOperatorsAndSettings() {
	s.Run("operator approvals toggle", func() {
		s.Require().NoError(s.store.SetOperator(s.ctx, alice, bob, true))
		ok, err := s.store.IsOperator(s.ctx, alice, bob)
		s.Require().NoError(err)
		s.True(ok)

		s.Require().NoError(s.store.SetOperator(s.ctx, alice, bob, false))
		ok, err = s.store.IsOperator(s.ctx, alice, bob)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("settings default to empty", func() {
		value, err := s.store.GetSetting(s.ctx, SettingBaseURI)
		s.Require().NoError(err)
		s.Empty(value)

		s.Require().NoError(s.store.PutSetting(s.ctx, SettingBaseURI, "https://names.example.com/v1/"))
		value, err = s.store.GetSetting(s.ctx, SettingBaseURI)
		s.Require().NoError(err)
		s.Equal("https://names.example.com/v1/", value)
	})
}
