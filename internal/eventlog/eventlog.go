package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only record of a state transition or permission
// decision. Entries are never updated or deleted.
type Entry struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	OccurredAt time.Time `json:"occurred_at" gorm:"not null;index"`
	ActorID    int64     `json:"actor_id" gorm:"not null;index"`
	Action     string    `json:"action" gorm:"not null"`
	EntityType string    `json:"entity_type" gorm:"not null;index:idx_event_log_entity"`
	EntityID   string    `json:"entity_id" gorm:"not null;index:idx_event_log_entity"`
	Decision   string    `json:"decision,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Detail     string    `json:"detail,omitempty" gorm:"type:jsonb"`
}

func (Entry) TableName() string {
	return "event_log"
}

func NewEntry(actorID int64, action, entityType, entityID string) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		OccurredAt: time.Now(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
}

// WithDecision records the outcome and the winning rule of a permission
// evaluation.
func (e *Entry) WithDecision(decision, rule string) *Entry {
	e.Decision = decision
	e.Rule = rule
	return e
}

// WithDetail marshals extra context into the detail column. Marshal failure
// is swallowed; the entry is still usable without detail.
func (e *Entry) WithDetail(detail map[string]any) *Entry {
	if len(detail) == 0 {
		return e
	}
	if raw, err := json.Marshal(detail); err == nil {
		e.Detail = string(raw)
	}
	return e
}

// Sink appends entries. Implementations used inside transactional
// repositories must make the append part of the enclosing transaction.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
}

// Reader serves traceability queries over finalized entries.
type Reader interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Entry, error)
	ListByActor(ctx context.Context, actorID int64, limit, offset int) ([]*Entry, error)
}
