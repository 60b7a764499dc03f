package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/approval"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"gorm.io/gorm"
)

// ChainRepository implements the approval.Repository interface using GORM.
type ChainRepository struct {
	db *gorm.DB
}

func NewChainRepository(db *gorm.DB) approval.Repository {
	return &ChainRepository{db: db}
}

func (r *ChainRepository) Create(ctx context.Context, chain *approval.Chain, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chain).Error; err != nil {
			return err
		}
		for _, entry := range entries {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ChainRepository) GetByID(ctx context.Context, id string) (*approval.Chain, error) {
	var chain approval.Chain
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("id = ?", id).
		First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, approval.ErrChainNotFound
		}
		return nil, err
	}
	return &chain, nil
}

func (r *ChainRepository) GetByRecord(ctx context.Context, recordType, recordID string) (*approval.Chain, error) {
	var chain approval.Chain
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Order("created_at DESC").
		First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, approval.ErrChainNotFound
		}
		return nil, err
	}
	return &chain, nil
}

func (r *ChainRepository) ListPendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]*approval.Chain, error) {
	var chains []*approval.Chain
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Joins("JOIN approval_steps s ON s.chain_id = approval_chains.id AND s.step_order = approval_chains.current_step_index").
		Where("approval_chains.status = ? AND s.approver_id = ?", approval.ChainStatusPending, approverID).
		Order("approval_chains.created_at ASC"). // FIFO for approvals
		Limit(limit).
		Offset(offset).
		Find(&chains).Error
	return chains, err
}

// UpdateWithVersion persists the chain, its steps and the event log entries
// in one transaction. The version guard turns a lost race into
// ErrConcurrentModification instead of a silent double apply.
func (r *ChainRepository) UpdateWithVersion(ctx context.Context, chain *approval.Chain, expectedVersion int64, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&approval.Chain{}).
			Where("id = ? AND version = ?", chain.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":             chain.Status,
				"current_step_index": chain.CurrentStepIndex,
				"decided_at":         chain.DecidedAt,
				"version":            chain.Version,
				"updated_at":         time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return internal.ErrConcurrentModification
		}

		for i := range chain.Steps {
			if err := tx.Save(&chain.Steps[i]).Error; err != nil {
				return err
			}
		}

		for _, entry := range entries {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
