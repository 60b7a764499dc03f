package identity

import (
	"context"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
)

// Role is the coarse role a principal holds. Fine-grained grants layer on
// top of these defaults.
type Role string

const (
	RoleUser   Role = "user"
	RoleLeader Role = "leader"
	RoleAdmin  Role = "admin"
)

type Principal struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-" gorm:"column:password_hash"`
	Role         Role       `json:"role" gorm:"type:varchar(16);default:user"`
	Department   string     `json:"department"`
	SuperiorID   *int64     `json:"superior_id,omitempty" gorm:"column:superior_id"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	IsLocked     bool       `json:"is_locked" gorm:"default:false"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"default:now()"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"default:now()"`
}

func (Principal) TableName() string {
	return "principals"
}

func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAct reports whether the account may take workflow actions at all.
func (p *Principal) CanAct() bool {
	return p.IsActive && !p.IsLocked
}

// Directory is the identity collaborator: role, lock state and superior
// lookups for escalation.
type Directory interface {
	GetPrincipal(ctx context.Context, id int64) (*Principal, error)
	SuperiorOf(ctx context.Context, id int64) (*Principal, error)
}

var (
	ErrPrincipalNotFound = internal.ErrPrincipalNotFound
	ErrNoSuperior        = internal.NewNotFoundError("principal has no superior configured", internal.ErrCodePrincipalNotFound)
)
