// Package ens models the external hierarchical naming system at its
// interface boundary. The registrar only ever delegates ("who resolves this
// node") and reads back; resolution itself is out of scope.
package ens

import (
	"context"
	"sync"

	id "namereg/pkg/domain"
)

// NameService is the collaborator interface the ledger consumes. The real
// system is external; the in-memory implementation below backs dev and tests.
type NameService interface {
	// SetSubnodeOwner assigns the owner of label under parent and returns the
	// child node. Only the current owner of parent may call it.
	SetSubnodeOwner(ctx context.Context, parent, label id.Hash, owner id.Address) (id.Hash, error)
	// SetOwner reassigns a node's owner. Only the current owner may call it.
	SetOwner(ctx context.Context, node id.Hash, owner id.Address) error
	Owner(ctx context.Context, node id.Hash) (id.Address, error)
	Resolver(ctx context.Context, node id.Hash) (id.Address, error)
	SetResolver(ctx context.Context, node id.Hash, resolver id.Address) error
}

// InMemory is a minimal registry: node → {owner, resolver}. The root node is
// owned by the account given at construction so tests can seed delegation.
type InMemory struct {
	mu        sync.RWMutex
	owners    map[id.Hash]id.Address
	resolvers map[id.Hash]id.Address

	// caller simulates the identity this process acts as when talking to the
	// external system; ownership checks compare against it.
	caller id.Address
}

// NewInMemory builds a registry whose root node belongs to rootOwner.
func NewInMemory(rootOwner id.Address) *InMemory {
	return &InMemory{
		owners:    map[id.Hash]id.Address{id.ZeroHash: rootOwner},
		resolvers: make(map[id.Hash]id.Address),
		caller:    rootOwner,
	}
}

// ActAs switches the identity used for ownership checks. Wiring hands the
// parent node to the registrar service and then acts as it.
func (r *InMemory) ActAs(caller id.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caller = caller
}

// SeedNode force-assigns a node owner, bypassing checks. Test setup only.
func (r *InMemory) SeedNode(node id.Hash, owner id.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[node] = owner
}

func (r *InMemory) SetSubnodeOwner(_ context.Context, parent, label id.Hash, owner id.Address) (id.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[parent] != r.caller {
		return id.ZeroHash, ErrNotNodeOwner
	}
	child := id.Subnode(parent, label)
	r.owners[child] = owner
	return child, nil
}

func (r *InMemory) SetOwner(_ context.Context, node id.Hash, owner id.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[node] != r.caller {
		return ErrNotNodeOwner
	}
	r.owners[node] = owner
	return nil
}

func (r *InMemory) Owner(_ context.Context, node id.Hash) (id.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[node], nil
}

func (r *InMemory) Resolver(_ context.Context, node id.Hash) (id.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolvers[node], nil
}

func (r *InMemory) SetResolver(_ context.Context, node id.Hash, resolver id.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[node] != r.caller {
		return ErrNotNodeOwner
	}
	r.resolvers[node] = resolver
	return nil
}
