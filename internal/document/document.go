package document

import (
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusEffective       Status = "effective"
	StatusArchived        Status = "archived"
	StatusObsolete        Status = "obsolete"
)

// RecordType is the value approval chains carry for controlled documents.
const RecordType = "document"

// Document is one controlled document revision. Revision counts in
// DocVersion; Version is the optimistic concurrency guard.
type Document struct {
	ID         string         `json:"id" gorm:"primaryKey;type:uuid"`
	Number     string         `json:"number" gorm:"not null;uniqueIndex"`
	Title      string         `json:"title" gorm:"not null"`
	Category   string         `json:"category" gorm:"not null;index"`
	DocVersion int            `json:"doc_version" gorm:"not null;default:1"`
	Status     Status         `json:"status" gorm:"not null;default:'draft'"`
	CreatorID  int64          `json:"creator_id" gorm:"not null;index"`
	FilePath   *string        `json:"file_path,omitempty"`
	Version    int64          `json:"version" gorm:"not null;default:1"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Document) TableName() string {
	return "documents"
}

// CanTransitionTo enumerates the legal lifecycle moves.
func (d *Document) CanTransitionTo(next Status) bool {
	switch next {
	case StatusPendingApproval:
		return d.Status == StatusDraft
	case StatusEffective:
		return d.Status == StatusPendingApproval
	case StatusDraft:
		return d.Status == StatusPendingApproval
	case StatusArchived:
		return d.Status == StatusEffective
	case StatusObsolete:
		return d.Status == StatusEffective || d.Status == StatusArchived
	default:
		return false
	}
}

var (
	ErrDocumentNotFound      = internal.ErrDocumentNotFound
	ErrInvalidDocumentStatus = internal.ErrInvalidDocumentStatus
)
