package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/identity"
	"gorm.io/gorm"
)

// PrincipalRepository implements identity.Directory using GORM.
type PrincipalRepository struct {
	db *gorm.DB
}

func NewPrincipalRepository(db *gorm.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) GetPrincipal(ctx context.Context, id int64) (*identity.Principal, error) {
	var p identity.Principal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrPrincipalNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PrincipalRepository) SuperiorOf(ctx context.Context, id int64) (*identity.Principal, error) {
	p, err := r.GetPrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.SuperiorID == nil {
		return nil, identity.ErrNoSuperior
	}
	return r.GetPrincipal(ctx, *p.SuperiorID)
}

// RecordLogin stamps a successful authentication.
func (r *PrincipalRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&identity.Principal{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_login_at": at, "updated_at": at}).Error
}

func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	var p identity.Principal
	err := r.db.WithContext(ctx).Where("email = ? AND is_active = true", email).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrPrincipalNotFound
		}
		return nil, err
	}
	return &p, nil
}
