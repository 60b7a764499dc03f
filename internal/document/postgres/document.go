package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/document"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"gorm.io/gorm"
)

// DocumentRepository implements the document.Repository interface using GORM.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) document.Repository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return appendEntries(tx, entries)
	})
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*document.Document, error) {
	var doc document.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, document.ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]*document.Document, error) {
	var docs []*document.Document
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) UpdateWithVersion(ctx context.Context, doc *document.Document, expectedVersion int64, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&document.Document{}).
			Where("id = ? AND version = ?", doc.ID, expectedVersion).
			Updates(map[string]any{
				"status":      doc.Status,
				"doc_version": doc.DocVersion,
				"version":     doc.Version,
				"updated_at":  doc.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrConcurrentModification
		}
		return appendEntries(tx, entries)
	})
}

func (r *DocumentRepository) SoftDelete(ctx context.Context, id string, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&document.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return document.ErrDocumentNotFound
		}
		return appendEntries(tx, entries)
	})
}

// PurgeSoftDeleted hard-deletes documents whose soft delete is older than
// the cutoff. Running it twice over the same window is a no-op.
func (r *DocumentRepository) PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", before).
		Delete(&document.Document{})
	return res.RowsAffected, res.Error
}

func appendEntries(tx *gorm.DB, entries []*eventlog.Entry) error {
	for _, entry := range entries {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
	}
	return nil
}
