package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/permission"
	"gorm.io/gorm"
)

// GrantRepository implements the permission.Repository interface using GORM.
type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) permission.Repository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) Create(ctx context.Context, grant *permission.Grant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *GrantRepository) GetByID(ctx context.Context, id string) (*permission.Grant, error) {
	var grant permission.Grant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, permission.ErrGrantNotFound
		}
		return nil, err
	}
	return &grant, nil
}

func (r *GrantRepository) ListActiveForUser(ctx context.Context, userID int64) ([]*permission.Grant, error) {
	var grants []*permission.Grant
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("granted_at ASC").
		Find(&grants).Error
	return grants, err
}

func (r *GrantRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*permission.Grant, error) {
	var grants []*permission.Grant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&grants).Error
	return grants, err
}

// Revoke sets revoked_at iff the grant is still active. The guarded update
// keeps two racing revocations from both reporting success.
func (r *GrantRepository) Revoke(ctx context.Context, id string, by int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&permission.Grant{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{
			"revoked_at": at,
			"revoked_by": by,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return permission.ErrGrantAlreadyRevoked
	}
	return nil
}
