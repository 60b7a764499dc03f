package postgres

import (
	"context"

	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"gorm.io/gorm"
)

// EventLogRepository implements eventlog.Sink and eventlog.Reader using GORM.
type EventLogRepository struct {
	db *gorm.DB
}

func NewEventLogRepository(db *gorm.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

func (r *EventLogRepository) Append(ctx context.Context, entry *eventlog.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *EventLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*eventlog.Entry, error) {
	var entries []*eventlog.Entry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

func (r *EventLogRepository) ListByActor(ctx context.Context, actorID int64, limit, offset int) ([]*eventlog.Entry, error) {
	var entries []*eventlog.Entry
	err := r.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}
