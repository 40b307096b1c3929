package commitreveal

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/controller/commitreveal/store"
	"namereg/internal/ens"
	"namereg/internal/events"
	"namereg/internal/fees"
	"namereg/internal/name"
	regservice "namereg/internal/registrar/service"
	regstore "namereg/internal/registrar/store"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

var (
	admin       = id.Address("0x00000000000000000000000000000000000000ad")
	serviceAcct = id.Address("0x000000000000000000000000000000000000005e")
	instance    = id.Address("0x00000000000000000000000000000000000000cc")
	alice       = id.Address("0x00000000000000000000000000000000000000a1")
	bob         = id.Address("0x00000000000000000000000000000000000000b2")

	salt = id.Keccak256([]byte("salt"))
)

// price is 100 tokens with 18 decimals, well past uint64 range.
func price() *big.Int {
	p, _ := new(big.Int).SetString("100000000000000000000", 10)
	return p
}

type CommitRevealSuite struct {
	suite.Suite
	service   *Service
	registrar *regservice.Service
	token     *fees.InMemoryToken
	eventLog  *events.InMemoryStore
	start     time.Time
	ctx       context.Context
}

func (s *CommitRevealSuite) SetupTest() {
	s.token = fees.NewInMemoryToken()
	s.eventLog = events.NewInMemoryStore()
	recorder := events.NewRecorder(s.eventLog)
	naming := ens.NewInMemory(serviceAcct)

	registrar, err := regservice.New(regservice.Config{
		Owner:          admin,
		ServiceAccount: serviceAcct,
		TopDomain:      "eth",
		Domain:         "dcl",
	}, regstore.NewInMemory(), naming, recorder)
	s.Require().NoError(err)
	s.registrar = registrar

	naming.SeedNode(registrar.BaseNode(), serviceAcct)
	s.Require().NoError(registrar.AddController(context.Background(), instance, admin))
	s.Require().NoError(registrar.FinishMigration(context.Background(), admin))

	service, err := New(Config{
		InstanceID:  instance,
		Price:       price(),
		RevealDelay: 60 * time.Second,
	}, store.NewInMemory(), registrar, fees.New(s.token, instance), recorder)
	s.Require().NoError(err)
	s.service = service

	s.fund(alice)

	s.start = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.start)
}

func TestCommitRevealSuite(t *testing.T) {
	suite.Run(t, new(CommitRevealSuite))
}

func (s *CommitRevealSuite) fund(account id.Address) {
	s.token.Mint(account, price())
	s.token.Approve(account, instance, price())
}

// after returns a context whose request time is d past the commit time.
func (s *CommitRevealSuite) after(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.start.Add(d))
}

func (s *CommitRevealSuite) assertReason(err error, reason string) {
	s.Require().Error(err)
	s.Equal(reason, dErrors.Reason(err))
}

func (s *CommitRevealSuite) commit(rawName string, beneficiary, caller id.Address) id.Hash {
	hash := s.service.Hash(rawName, beneficiary, salt, caller)
	s.Require().NoError(s.service.Commit(s.ctx, hash, caller))
	return hash
}

func (s *CommitRevealSuite) TestHash() {
	s.Run("binds every preimage byte", func() {
		base := s.service.Hash("nacho", alice, salt, alice)

		s.NotEqual(base, s.service.Hash("macho", alice, salt, alice))
		s.NotEqual(base, s.service.Hash("nacho", bob, salt, alice))
		s.NotEqual(base, s.service.Hash("nacho", alice, id.Keccak256([]byte("other")), alice))
		s.NotEqual(base, s.service.Hash("nacho", alice, salt, bob))
	})

	s.Run("is deterministic", func() {
		s.Equal(s.service.Hash("nacho", alice, salt, alice), s.service.Hash("nacho", alice, salt, alice))
	})
}

func (s *CommitRevealSuite) TestCommit() {
	s.Run("accepts and logs a commit", func() {
		s.commit("nacho", alice, alice)
		s.Len(s.eventLog.OfType(events.TypeCommittedName), 1)
	})

	s.Run("rejects a hash pending for any committer", func() {
		hash := s.commit("nacho", alice, alice)

		err := s.service.Commit(s.ctx, hash, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.assertReason(err, "there is already a commit for the same hash")
	})

	s.Run("overwriting discards the previous intent", func() {
		first := s.commit("first", alice, alice)
		s.commit("second", alice, alice)

		// The discarded hash is free again for anyone.
		s.Require().NoError(s.service.Commit(s.ctx, first, bob))

		// And the discarded intent can no longer be revealed.
		_, err := s.service.Reveal(s.after(61*time.Second), "first", alice, salt, alice)
		s.assertReason(err, "the reveal does not match the commit")
	})

	s.Run("rejects the zero hash", func() {
		s.assertReason(s.service.Commit(s.ctx, id.ZeroHash, alice), "commit hash can not be zero")
	})
}

func (s *CommitRevealSuite) TestReveal() {
	s.Run("registers the name after the delay", func() {
		s.commit("nacho", alice, alice)

		tokenID, err := s.service.Reveal(s.after(61*time.Second), "nacho", alice, salt, alice)
		s.Require().NoError(err)

		owner, err := s.registrar.GetOwnerOf(context.Background(), "nacho")
		s.Require().NoError(err)
		s.Equal(alice, owner)

		s.False(tokenID.IsZero())

		// The full fee is destroyed.
		balance, err := s.token.BalanceOf(context.Background(), alice)
		s.Require().NoError(err)
		s.Zero(balance.Sign())

		s.Len(s.eventLog.OfType(events.TypeRevealedName), 1)
		s.Len(s.eventLog.OfType(events.TypeNameBought), 1)
	})

	s.Run("exactly at the delay boundary is ready", func() {
		s.fund(alice)
		s.commit("macho", alice, alice)

		_, err := s.service.Reveal(s.after(60*time.Second), "macho", alice, salt, alice)
		s.Require().NoError(err)
	})

	s.Run("too early", func() {
		s.commit("early", alice, alice)

		_, err := s.service.Reveal(s.after(59*time.Second), "early", alice, salt, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.assertReason(err, "the commit is not ready to be revealed")
	})

	s.Run("without a commit", func() {
		_, err := s.service.Reveal(s.after(61*time.Second), "fresh", bob, salt, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.assertReason(err, "the commit does not exist")
	})

	s.Run("tampered preimage", func() {
		s.commit("tamper", alice, alice)

		_, err := s.service.Reveal(s.after(61*time.Second), "tamper", bob, salt, alice)
		s.assertReason(err, "the reveal does not match the commit")
	})

	s.Run("second reveal of the same commit", func() {
		s.fund(alice)
		s.commit("twice", alice, alice)

		_, err := s.service.Reveal(s.after(61*time.Second), "twice", alice, salt, alice)
		s.Require().NoError(err)

		_, err = s.service.Reveal(s.after(62*time.Second), "twice", alice, salt, alice)
		s.assertReason(err, "the commit was already revealed")
	})

	s.Run("invalid name surfaces at reveal, commit stays open", func() {
		s.fund(alice)
		before, berr := s.token.BalanceOf(context.Background(), alice)
		s.Require().NoError(berr)
		s.commit("x", alice, alice)

		_, err := s.service.Reveal(s.after(61*time.Second), "x", alice, salt, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		// Nothing was charged and nothing was consumed.
		after, berr := s.token.BalanceOf(context.Background(), alice)
		s.Require().NoError(berr)
		s.Equal(before, after)
	})

	s.Run("a name sniped during the delay costs nothing", func() {
		s.fund(alice)
		before, berr := s.token.BalanceOf(context.Background(), alice)
		s.Require().NoError(berr)

		s.commit("sniped", alice, alice)

		// Someone else wins the name through another controller while alice
		// sits out the delay.
		_, err := s.registrar.Register(context.Background(), name.Canonical("sniped"), "sniped", bob, instance)
		s.Require().NoError(err)

		_, err = s.service.Reveal(s.after(61*time.Second), "sniped", alice, salt, alice)
		s.assertReason(err, "subdomain already owned")

		// Losing the race must not consume the fee.
		after, berr := s.token.BalanceOf(context.Background(), alice)
		s.Require().NoError(berr)
		s.Equal(before, after)
	})

	s.Run("failed charge leaves the commit retryable", func() {
		s.commit("nachos", bob, bob)

		_, err := s.service.Reveal(s.after(61*time.Second), "nachos", bob, salt, bob)
		s.assertReason(err, "insufficient funds")

		s.fund(bob)
		_, err = s.service.Reveal(s.after(61*time.Second), "nachos", bob, salt, bob)
		s.Require().NoError(err)
	})
}

// TestFrontRunning exercises the adversarial interleaving the protocol
// exists to prevent: an observer of a pending commit can neither reveal it
// nor block it by re-committing the same hash.
func (s *CommitRevealSuite) TestFrontRunning() {
	s.fund(bob)

	observed := s.commit("nacho", alice, alice)

	// Bob cannot replay the observed hash as his own commitment.
	err := s.service.Commit(s.ctx, observed, bob)
	s.assertReason(err, "there is already a commit for the same hash")

	// Even knowing the full preimage after Alice broadcasts her reveal, the
	// caller binding makes Bob's reveal a different hash with no commit.
	_, err = s.service.Reveal(s.after(61*time.Second), "nacho", alice, salt, bob)
	s.assertReason(err, "the commit does not exist")

	// Alice's reveal goes through untouched.
	_, err = s.service.Reveal(s.after(61*time.Second), "nacho", alice, salt, alice)
	s.Require().NoError(err)
}
