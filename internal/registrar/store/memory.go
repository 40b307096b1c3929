package store

import (
	"context"
	"sync"

	"namereg/internal/registrar/models"
	id "namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

// InMemory keeps the ledger in process. It favors clarity over performance
// and backs unit tests and single-node deployments.
type InMemory struct {
	mu          sync.RWMutex
	records     map[id.Hash]*models.NameRecord
	byOwner     map[id.Address]map[id.Hash]struct{}
	controllers map[id.Address]bool
	operators   map[id.Address]map[id.Address]bool
	settings    map[string]string
	migrated    bool
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:     make(map[id.Hash]*models.NameRecord),
		byOwner:     make(map[id.Address]map[id.Hash]struct{}),
		controllers: make(map[id.Address]bool),
		operators:   make(map[id.Address]map[id.Address]bool),
		settings:    make(map[string]string),
	}
}

func (s *InMemory) Create(_ context.Context, record *models.NameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.TokenID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *record
	s.records[record.TokenID] = &clone
	s.indexOwnerLocked(record.Owner, record.TokenID)
	return nil
}

func (s *InMemory) Find(_ context.Context, tokenID id.Hash) (*models.NameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemory) Execute(_ context.Context, tokenID id.Hash,
	validate func(*models.NameRecord) error,
	mutate func(*models.NameRecord)) (*models.NameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	oldOwner := record.Owner
	mutate(record)
	if record.Owner != oldOwner {
		delete(s.byOwner[oldOwner], tokenID)
		s.indexOwnerLocked(record.Owner, tokenID)
	}
	clone := *record
	return &clone, nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.Address) ([]id.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]id.Hash, 0, len(s.byOwner[owner]))
	for tokenID := range s.byOwner[owner] {
		tokens = append(tokens, tokenID)
	}
	return tokens, nil
}

func (s *InMemory) AddController(_ context.Context, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controllers[addr] {
		return sentinel.ErrAlreadyUsed
	}
	s.controllers[addr] = true
	return nil
}

func (s *InMemory) RemoveController(_ context.Context, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.controllers[addr] {
		return sentinel.ErrNotFound
	}
	delete(s.controllers, addr)
	return nil
}

func (s *InMemory) IsController(_ context.Context, addr id.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controllers[addr], nil
}

func (s *InMemory) MigrationFinished(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migrated, nil
}

func (s *InMemory) FinishMigration(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return sentinel.ErrInvalidState
	}
	s.migrated = true
	return nil
}

func (s *InMemory) SetOperator(_ context.Context, owner, operator id.Address, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.operators[owner] == nil {
		s.operators[owner] = make(map[id.Address]bool)
	}
	if approved {
		s.operators[owner][operator] = true
	} else {
		delete(s.operators[owner], operator)
	}
	return nil
}

func (s *InMemory) IsOperator(_ context.Context, owner, operator id.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators[owner][operator], nil
}

func (s *InMemory) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

func (s *InMemory) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *InMemory) indexOwnerLocked(owner id.Address, tokenID id.Hash) {
	if s.byOwner[owner] == nil {
		s.byOwner[owner] = make(map[id.Hash]struct{})
	}
	s.byOwner[owner][tokenID] = struct{}{}
}
