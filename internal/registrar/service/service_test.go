package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/ens"
	"namereg/internal/events"
	"namereg/internal/name"
	"namereg/internal/registrar/store"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

var (
	admin       = id.Address("0x00000000000000000000000000000000000000ad")
	serviceAcct = id.Address("0x000000000000000000000000000000000000005e")
	controller  = id.Address("0x00000000000000000000000000000000000000c0")
	alice       = id.Address("0x00000000000000000000000000000000000000a1")
	bob         = id.Address("0x00000000000000000000000000000000000000b2")
	carol       = id.Address("0x00000000000000000000000000000000000000c3")
)

type RegistrarSuite struct {
	suite.Suite
	service  *Service
	store    *store.InMemory
	naming   *ens.InMemory
	eventLog *events.InMemoryStore
	ctx      context.Context
}

func (s *RegistrarSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.naming = ens.NewInMemory(serviceAcct)
	s.eventLog = events.NewInMemoryStore()
	s.ctx = context.Background()

	svc, err := New(Config{
		Owner:          admin,
		ServiceAccount: serviceAcct,
		TopDomain:      "eth",
		Domain:         "dcl",
		BaseURI:        "https://names.example.com/v1/",
	}, s.store, s.naming, events.NewRecorder(s.eventLog))
	s.Require().NoError(err)
	s.service = svc

	// The parent node is delegated to the service before it can mint.
	s.naming.SeedNode(svc.BaseNode(), serviceAcct)
	s.Require().NoError(svc.AddController(s.ctx, controller, admin))
}

func TestRegistrarSuite(t *testing.T) {
	suite.Run(t, new(RegistrarSuite))
}

func (s *RegistrarSuite) assertReason(err error, reason string) {
	s.Require().Error(err)
	s.Equal(reason, dErrors.Reason(err))
}

// openGate flips the migration gate, tolerating subtests that already did.
func (s *RegistrarSuite) openGate() {
	finished, err := s.store.MigrationFinished(s.ctx)
	s.Require().NoError(err)
	if finished {
		return
	}
	s.Require().NoError(s.service.FinishMigration(s.ctx, admin))
}

func (s *RegistrarSuite) register(display string, beneficiary id.Address) id.Hash {
	tokenID, err := s.service.Register(s.ctx, name.Canonical(name.Canonicalize(display)), display, beneficiary, controller)
	s.Require().NoError(err)
	return tokenID
}

func (s *RegistrarSuite) TestRegister() {
	s.Run("mints a name and delegates the subnode", func() {
		s.openGate()
		tokenID := s.register("nacho", alice)

		owner, err := s.service.GetOwnerOf(s.ctx, "nacho")
		s.Require().NoError(err)
		s.Equal(alice, owner)

		nodeOwner, err := s.naming.Owner(s.ctx, id.Subnode(s.service.BaseNode(), tokenID))
		s.Require().NoError(err)
		s.Equal(alice, nodeOwner)

		registered := s.eventLog.OfType(events.TypeNameRegistered)
		s.Require().Len(registered, 1)
		s.Equal("nacho", registered[0].Fields["name"])
	})

	s.Run("rejects non-controller callers", func() {
		s.openGate()
		_, err := s.service.Register(s.ctx, "mallory", "mallory", alice, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.assertReason(err, "only a controller can call this method")
	})

	s.Run("rejects registrations before the gate opens", func() {
		_, err := s.service.Register(s.ctx, "early", "early", alice, controller)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.assertReason(err, "the migration has not finished")
	})

	s.Run("rejects a taken name regardless of casing", func() {
		s.openGate()
		s.register("taken", alice)

		_, err := s.service.Register(s.ctx, name.Canonical(name.Canonicalize("TAKEN")), "TAKEN", bob, controller)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.assertReason(err, "subdomain already owned")
	})

	s.Run("refuses to mint after losing the parent domain", func() {
		s.openGate()
		s.Require().NoError(s.service.TransferDomainOwnership(s.ctx, bob, "", admin))

		_, err := s.service.Register(s.ctx, "orphan", "orphan", alice, controller)
		s.assertReason(err, "the contract does not own the domain")
	})

	s.Run("a failed delegation leaves no record", func() {
		st := store.NewInMemory()
		naming := &flakyNaming{InMemory: ens.NewInMemory(serviceAcct)}
		svc, err := New(Config{
			Owner:          admin,
			ServiceAccount: serviceAcct,
			TopDomain:      "eth",
			Domain:         "dcl",
		}, st, naming, events.NewRecorder(events.NewInMemoryStore()))
		s.Require().NoError(err)
		naming.SeedNode(svc.BaseNode(), serviceAcct)
		s.Require().NoError(svc.AddController(s.ctx, controller, admin))
		s.Require().NoError(svc.FinishMigration(s.ctx, admin))

		naming.fail = true
		_, err = svc.Register(s.ctx, "broken", "broken", alice, controller)
		s.Require().Error(err)

		available, err := svc.Available(s.ctx, "broken")
		s.Require().NoError(err)
		s.True(available)
	})
}

// flakyNaming fails delegation on demand to exercise mint ordering.
type flakyNaming struct {
	*ens.InMemory
	fail bool
}

func (f *flakyNaming) SetSubnodeOwner(ctx context.Context, parent, label id.Hash, owner id.Address) (id.Hash, error) {
	if f.fail {
		return id.ZeroHash, errors.New("naming system unavailable")
	}
	return f.InMemory.SetSubnodeOwner(ctx, parent, label, owner)
}

func (s *RegistrarSuite) TestMigration() {
	s.Run("imports historical names with their timestamps", func() {
		createdAt := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
		err := s.service.Migrate(s.ctx, []MigrationItem{
			{RawName: "legacy\x00\x00\x00", Beneficiary: alice, CreatedAt: createdAt},
			{RawName: "OldTimer", Beneficiary: bob, CreatedAt: createdAt},
		}, admin)
		s.Require().NoError(err)

		owner, err := s.service.GetOwnerOf(s.ctx, "legacy")
		s.Require().NoError(err)
		s.Equal(alice, owner)

		// Case-insensitive key, display casing preserved.
		tokenID, err := s.service.GetTokenID(s.ctx, "oldtimer")
		s.Require().NoError(err)
		uri, err := s.service.TokenURI(s.ctx, tokenID)
		s.Require().NoError(err)
		s.Equal("https://names.example.com/v1/OldTimer", uri)
	})

	s.Run("only the administrator may migrate", func() {
		err := s.service.Migrate(s.ctx, nil, alice)
		s.assertReason(err, "caller is not the owner")
	})

	s.Run("a rejected batch leaves nothing registered", func() {
		// In-batch duplicate (case and padding permutations collide).
		err := s.service.Migrate(s.ctx, []MigrationItem{
			{RawName: "dupe", Beneficiary: alice},
			{RawName: "Dupe\x00\x00", Beneficiary: bob},
		}, admin)
		s.assertReason(err, "subdomain already owned")

		available, aerr := s.service.Available(s.ctx, "dupe")
		s.Require().NoError(aerr)
		s.True(available)

		// Collision with an already-imported name rejects the whole batch too.
		err = s.service.Migrate(s.ctx, []MigrationItem{
			{RawName: "fresh", Beneficiary: alice},
			{RawName: "LEGACY", Beneficiary: bob},
		}, admin)
		s.assertReason(err, "subdomain already owned")

		available, aerr = s.service.Available(s.ctx, "fresh")
		s.Require().NoError(aerr)
		s.True(available)
	})

	s.Run("the gate is one-way", func() {
		s.openGate()

		err := s.service.Migrate(s.ctx, []MigrationItem{{RawName: "late", Beneficiary: alice}}, admin)
		s.assertReason(err, "the migration has finished")

		s.assertReason(s.service.FinishMigration(s.ctx, admin), "the migration has finished")
	})
}

func (s *RegistrarSuite) TestTransfer() {
	s.Run("moves the token without touching the naming system", func() {
		s.openGate()
		tokenID := s.register("mover", alice)

		s.Require().NoError(s.service.Transfer(s.ctx, tokenID, alice, bob, alice))

		owner, err := s.service.GetOwnerOf(s.ctx, "mover")
		s.Require().NoError(err)
		s.Equal(bob, owner)

		// Resolution still points at the original beneficiary until Reclaim.
		nodeOwner, err := s.naming.Owner(s.ctx, id.Subnode(s.service.BaseNode(), tokenID))
		s.Require().NoError(err)
		s.Equal(alice, nodeOwner)
	})

	s.Run("approved delegate may transfer, approval clears after", func() {
		s.openGate()
		tokenID := s.register("delegated", alice)

		s.Require().NoError(s.service.Approve(s.ctx, tokenID, carol, alice))
		s.Require().NoError(s.service.Transfer(s.ctx, tokenID, alice, bob, carol))

		// The old approval must not survive into bob's ownership.
		err := s.service.Transfer(s.ctx, tokenID, bob, carol, carol)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.assertReason(err, "transfer caller is not owner nor approved")
	})

	s.Run("operator may transfer any token of the owner", func() {
		s.openGate()
		tokenID := s.register("managed", alice)

		s.Require().NoError(s.service.SetApprovalForAll(s.ctx, carol, true, alice))
		s.Require().NoError(s.service.Transfer(s.ctx, tokenID, alice, bob, carol))
	})

	s.Run("rejects strangers, wrong senders and the zero address", func() {
		s.openGate()
		tokenID := s.register("fixed", alice)

		err := s.service.Transfer(s.ctx, tokenID, alice, bob, bob)
		s.assertReason(err, "transfer caller is not owner nor approved")

		err = s.service.Transfer(s.ctx, tokenID, bob, carol, alice)
		s.assertReason(err, "transfer of token that is not own")

		err = s.service.Transfer(s.ctx, tokenID, alice, id.ZeroAddress, alice)
		s.assertReason(err, "transfer to the zero address")

		err = s.service.Transfer(s.ctx, name.TokenID("ghost"), alice, bob, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrarSuite) TestReclaim() {
	s.Run("re-syncs the naming system after a transfer", func() {
		s.openGate()
		tokenID := s.register("stale", alice)
		s.Require().NoError(s.service.Transfer(s.ctx, tokenID, alice, bob, alice))

		s.Require().NoError(s.service.Reclaim(s.ctx, tokenID, bob, bob))

		nodeOwner, err := s.naming.Owner(s.ctx, id.Subnode(s.service.BaseNode(), tokenID))
		s.Require().NoError(err)
		s.Equal(bob, nodeOwner)
	})

	s.Run("rejects unauthorized callers", func() {
		s.openGate()
		tokenID := s.register("guarded", alice)

		err := s.service.Reclaim(s.ctx, tokenID, carol, carol)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.assertReason(err, "only an authorized account can change the subdomain settings")
	})

	s.Run("unknown token", func() {
		err := s.service.Reclaim(s.ctx, name.TokenID("ghost"), alice, alice)
		s.assertReason(err, "the subdomain is not registered")
	})
}

func (s *RegistrarSuite) TestControllerACL() {
	s.Run("admin only", func() {
		s.assertReason(s.service.AddController(s.ctx, carol, alice), "caller is not the owner")
		s.assertReason(s.service.RemoveController(s.ctx, controller, alice), "caller is not the owner")
	})

	s.Run("redundant changes fail loudly", func() {
		s.assertReason(s.service.AddController(s.ctx, controller, admin), "the controller was already added")

		s.Require().NoError(s.service.RemoveController(s.ctx, controller, admin))
		s.assertReason(s.service.RemoveController(s.ctx, controller, admin), "the controller is already disabled")
	})

	s.Run("rejects the zero address", func() {
		s.assertReason(s.service.AddController(s.ctx, id.ZeroAddress, admin), "invalid address")
	})
}

func (s *RegistrarSuite) TestConfigCells() {
	s.Run("base uri must change value", func() {
		s.Require().NoError(s.service.UpdateBaseURI(s.ctx, "https://other.example.com/", admin))
		s.assertReason(s.service.UpdateBaseURI(s.ctx, "https://other.example.com/", admin), "base uri should be different from old")
	})

	s.Run("address cells reject zero, self and repeats", func() {
		registry := id.Address("0x0000000000000000000000000000000000000e05")

		s.assertReason(s.service.UpdateRegistry(s.ctx, id.ZeroAddress, admin), "invalid address")
		s.assertReason(s.service.UpdateRegistry(s.ctx, serviceAcct, admin), "invalid address")

		s.Require().NoError(s.service.UpdateRegistry(s.ctx, registry, admin))
		s.assertReason(s.service.UpdateRegistry(s.ctx, registry, admin), "new registry should be different from old")

		s.Require().NoError(s.service.UpdateBase(s.ctx, registry, admin))
		s.assertReason(s.service.UpdateBase(s.ctx, registry, admin), "new base should be different from old")
	})

	s.Run("resolver updates propagate to the naming system", func() {
		resolver := id.Address("0x0000000000000000000000000000000000000e50")
		s.Require().NoError(s.service.SetResolver(s.ctx, resolver, admin))

		got, err := s.naming.Resolver(s.ctx, s.service.BaseNode())
		s.Require().NoError(err)
		s.Equal(resolver, got)

		s.assertReason(s.service.SetResolver(s.ctx, resolver, admin), "new resolver should be different from old")
	})
}

func (s *RegistrarSuite) TestLookups() {
	s.openGate()
	tokenID := s.register("Finder", alice)

	s.Run("token id is casing-independent", func() {
		got, err := s.service.GetTokenID(s.ctx, "fInDeR")
		s.Require().NoError(err)
		s.Equal(tokenID, got)
	})

	s.Run("availability flips on registration", func() {
		available, err := s.service.Available(s.ctx, "FINDER")
		s.Require().NoError(err)
		s.False(available)

		available, err = s.service.Available(s.ctx, "unused")
		s.Require().NoError(err)
		s.True(available)
	})

	s.Run("unknown names are not registered", func() {
		_, err := s.service.GetTokenID(s.ctx, "ghost")
		s.assertReason(err, "the subdomain is not registered")

		_, err = s.service.GetOwnerOf(s.ctx, "ghost")
		s.assertReason(err, "the subdomain is not registered")
	})

	s.Run("token uri keeps display casing", func() {
		uri, err := s.service.TokenURI(s.ctx, tokenID)
		s.Require().NoError(err)
		s.Equal("https://names.example.com/v1/Finder", uri)
	})

	s.Run("tokens by owner", func() {
		tokens, err := s.service.Tokens(s.ctx, alice)
		s.Require().NoError(err)
		s.Len(tokens, 1)
	})
}

func (s *RegistrarSuite) TestApprovals() {
	s.openGate()
	tokenID := s.register("approvee", alice)

	s.Run("only owner or operator may approve", func() {
		err := s.service.Approve(s.ctx, tokenID, carol, bob)
		s.assertReason(err, "approve caller is not owner nor approved for all")
	})

	s.Run("self-operator is rejected", func() {
		err := s.service.SetApprovalForAll(s.ctx, alice, true, alice)
		s.assertReason(err, "approve to caller")
	})
}
