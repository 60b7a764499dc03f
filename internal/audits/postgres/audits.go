package postgres

import (
	"context"
	"errors"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/audits"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"gorm.io/gorm"
)

// AuditRepository implements the audits.Repository interface using GORM.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audits.Repository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) CreatePlan(ctx context.Context, plan *audits.Plan, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		return appendEntries(tx, entries)
	})
}

func (r *AuditRepository) GetPlan(ctx context.Context, id string) (*audits.Plan, error) {
	var plan audits.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, audits.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *AuditRepository) ListPlans(ctx context.Context, limit, offset int) ([]*audits.Plan, error) {
	var plans []*audits.Plan
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&plans).Error
	return plans, err
}

func (r *AuditRepository) UpdatePlanWithVersion(ctx context.Context, plan *audits.Plan, expectedVersion int64, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := savePlanWithVersion(tx, plan, expectedVersion); err != nil {
			return err
		}
		return appendEntries(tx, entries)
	})
}

func (r *AuditRepository) CreateFinding(ctx context.Context, finding *audits.Finding, plan *audits.Plan, planVersion int64, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(finding).Error; err != nil {
			return err
		}
		if plan.Version != planVersion {
			if err := savePlanWithVersion(tx, plan, planVersion); err != nil {
				return err
			}
		}
		return appendEntries(tx, entries)
	})
}

func (r *AuditRepository) GetFinding(ctx context.Context, id string) (*audits.Finding, error) {
	var finding audits.Finding
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&finding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, audits.ErrFindingNotFound
		}
		return nil, err
	}
	return &finding, nil
}

func (r *AuditRepository) ListFindingsForPlan(ctx context.Context, planID string) ([]*audits.Finding, error) {
	var findings []*audits.Finding
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Find(&findings).Error
	return findings, err
}

func (r *AuditRepository) TransitionFinding(ctx context.Context, finding *audits.Finding, expectedVersion int64, rect *audits.Rectification, plan *audits.Plan, planVersion int64, entries ...*eventlog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&audits.Finding{}).
			Where("id = ? AND version = ?", finding.ID, expectedVersion).
			Updates(map[string]any{
				"status":     finding.Status,
				"version":    finding.Version,
				"updated_at": finding.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrConcurrentModification
		}
		if rect != nil {
			if err := tx.Save(rect).Error; err != nil {
				return err
			}
		}
		if plan != nil && plan.Version != planVersion {
			if err := savePlanWithVersion(tx, plan, planVersion); err != nil {
				return err
			}
		}
		return appendEntries(tx, entries)
	})
}

func (r *AuditRepository) ActiveRectification(ctx context.Context, findingID string) (*audits.Rectification, error) {
	var rect audits.Rectification
	err := r.db.WithContext(ctx).
		Where("finding_id = ? AND verified_at IS NULL AND rejection_reason IS NULL", findingID).
		Order("submitted_at DESC").
		First(&rect).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, audits.ErrRectificationNotPending
		}
		return nil, err
	}
	return &rect, nil
}

func (r *AuditRepository) ListRectifications(ctx context.Context, findingID string) ([]*audits.Rectification, error) {
	var rects []*audits.Rectification
	err := r.db.WithContext(ctx).
		Where("finding_id = ?", findingID).
		Order("submitted_at ASC").
		Find(&rects).Error
	return rects, err
}

// savePlanWithVersion applies the derived plan status under the optimistic
// guard so two racing finding transitions cannot both rewrite the plan.
func savePlanWithVersion(tx *gorm.DB, plan *audits.Plan, expectedVersion int64) error {
	res := tx.Model(&audits.Plan{}).
		Where("id = ? AND version = ?", plan.ID, expectedVersion).
		Updates(map[string]any{
			"status":     plan.Status,
			"version":    plan.Version,
			"updated_at": plan.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrConcurrentModification
	}
	return nil
}

func appendEntries(tx *gorm.DB, entries []*eventlog.Entry) error {
	for _, entry := range entries {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
	}
	return nil
}
