package approval

import (
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
)

type ChainStatus string

const (
	ChainStatusPending   ChainStatus = "pending"
	ChainStatusApproved  ChainStatus = "approved"
	ChainStatusRejected  ChainStatus = "rejected"
	ChainStatusCancelled ChainStatus = "cancelled"
)

type StepDecision string

const (
	StepPending  StepDecision = "pending"
	StepApproved StepDecision = "approved"
	StepRejected StepDecision = "rejected"
)

// MinRejectionReasonLen is enforced before any state mutation.
const MinRejectionReasonLen = 10

// Chain is an ordered approval sequence for one submitted record. Exactly
// one step is current while the chain is pending; CurrentStepIndex never
// decreases.
type Chain struct {
	ID               string      `json:"id" gorm:"primaryKey;type:uuid"`
	RecordID         string      `json:"record_id" gorm:"not null;index:idx_approval_chains_record"`
	RecordType       string      `json:"record_type" gorm:"not null;index:idx_approval_chains_record"`
	CreatorID        int64       `json:"creator_id" gorm:"not null"`
	Steps            []Step      `json:"steps" gorm:"foreignKey:ChainID;references:ID"`
	CurrentStepIndex int         `json:"current_step_index" gorm:"not null;default:0"`
	Status           ChainStatus `json:"status" gorm:"type:varchar(16);default:pending"`
	Version          int64       `json:"version" gorm:"not null;default:1"`
	CreatedAt        time.Time   `json:"created_at" gorm:"default:now()"`
	UpdatedAt        time.Time   `json:"updated_at" gorm:"default:now()"`
	DecidedAt        *time.Time  `json:"decided_at,omitempty"`
}

func (Chain) TableName() string {
	return "approval_chains"
}

type Step struct {
	ID              int64        `json:"id" gorm:"primaryKey"`
	ChainID         string       `json:"chain_id" gorm:"type:uuid;not null;index"`
	Order           int          `json:"order" gorm:"column:step_order;not null"`
	ApproverID      int64        `json:"approver_id" gorm:"not null"`
	Decision        StepDecision `json:"decision" gorm:"type:varchar(16);default:pending"`
	Comment         *string      `json:"comment,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time   `json:"decided_at,omitempty"`
}

func (Step) TableName() string {
	return "approval_steps"
}

func (c *Chain) IsPending() bool {
	return c.Status == ChainStatusPending
}

// CurrentStep returns the step awaiting decision, or nil once the chain is
// terminal.
func (c *Chain) CurrentStep() *Step {
	if !c.IsPending() {
		return nil
	}
	if c.CurrentStepIndex < 0 || c.CurrentStepIndex >= len(c.Steps) {
		return nil
	}
	return &c.Steps[c.CurrentStepIndex]
}

func (c *Chain) IsLastStep() bool {
	return c.CurrentStepIndex == len(c.Steps)-1
}

var (
	ErrChainNotFound         = internal.ErrChainNotFound
	ErrNotCurrentStep        = internal.ErrNotCurrentStep
	ErrAlreadyDecided        = internal.ErrAlreadyDecided
	ErrSelfApprovalForbidden = internal.ErrSelfApprovalForbidden
)
