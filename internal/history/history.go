package history

import (
	"context"
	"time"
)

// EventType defines the kind of launcher lifecycle event.
type EventType string

const (
	EventUpdateApplied EventType = "update_applied"
	EventMinerStart    EventType = "miner_start"
	EventMinerStop     EventType = "miner_stop"
	EventMinerRestart  EventType = "miner_restart"
)

// Event represents a launcher lifecycle event to be exported to external
// systems: a version being promoted, or the miner starting, stopping, or
// being relaunched by one of the restart triggers.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    string    `json:"version,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
