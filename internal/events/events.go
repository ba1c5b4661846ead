// Package events publishes ledger events after their transaction commits.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys.
const (
	ContributionPosted    = "contribution.posted"
	ContributionVoided    = "contribution.voided"
	PlanSnapshotGenerated = "plan.snapshot_generated"
	PlanClosed            = "plan.closed"
	PayableOverdue        = "payable.overdue"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func New(kind string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       kind,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher is implemented by the RabbitMQ producer and the log fallback.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}
