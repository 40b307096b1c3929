// Package events is the ordered, observable log of everything the registry
// does. Domain services emit transport-agnostic events; stores and sinks fan
// them out.
package events

import (
	"context"
	"time"

	id "namereg/pkg/domain"
)

// Type names an observable action. These are the log entries callers and
// tests order-match on.
type Type string

const (
	TypeNameRegistered    Type = "name_registered"
	TypeNameBought        Type = "name_bought"
	TypeCommittedName     Type = "committed_name"
	TypeRevealedName      Type = "revealed_name"
	TypeTransfer          Type = "transfer"
	TypeReclaimed         Type = "reclaimed"
	TypeControllerAdded   Type = "controller_added"
	TypeControllerRemoved Type = "controller_removed"
	TypeMigrationFinished Type = "migration_finished"
	TypeBaseURIChanged    Type = "base_uri_changed"
	TypeRegistryChanged   Type = "registry_changed"
	TypeBaseChanged       Type = "base_changed"
	TypeResolverChanged   Type = "resolver_changed"
	TypeMaxGasPriceSet    Type = "max_gas_price_changed"
	TypeFeeCollectorSet   Type = "fee_collector_changed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Caller    id.Address        `json:"caller,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Store persists the event log in order.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context) ([]Event, error)
}

// Sink receives events after they are persisted (e.g. a Kafka producer).
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
