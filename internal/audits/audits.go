package audits

import (
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
)

type PlanType string

const (
	PlanQuarterly  PlanType = "quarterly"
	PlanSemiannual PlanType = "semiannual"
	PlanAnnual     PlanType = "annual"
)

type PlanStatus string

const (
	PlanDraft                PlanStatus = "draft"
	PlanOngoing              PlanStatus = "ongoing"
	PlanPendingRectification PlanStatus = "pending_rectification"
	PlanCompleted            PlanStatus = "completed"
)

type AuditResult string

const (
	ResultCompliant    AuditResult = "compliant"
	ResultNonCompliant AuditResult = "non_compliant"
)

type FindingStatus string

const (
	FindingOpen                   FindingStatus = "open"
	FindingRectificationSubmitted FindingStatus = "rectification_submitted"
	FindingVerified               FindingStatus = "verified"
	FindingRejected               FindingStatus = "rejected"
	FindingClosed                 FindingStatus = "closed"
)

// MinReasonLen applies to finding descriptions and rejection reasons alike.
const MinReasonLen = 10

// Plan groups the documents one audit cycle covers. Status is derived from
// the plan's findings, never set directly by callers.
type Plan struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string     `json:"title" gorm:"not null"`
	Type        PlanType   `json:"type" gorm:"not null"`
	StartDate   time.Time  `json:"start_date" gorm:"not null"`
	EndDate     time.Time  `json:"end_date" gorm:"not null"`
	AuditorID   int64      `json:"auditor_id" gorm:"not null;index"`
	DocumentIDs []string   `json:"document_ids" gorm:"serializer:json;column:document_ids"`
	Status      PlanStatus `json:"status" gorm:"not null;default:'draft'"`
	Version     int64      `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Plan) TableName() string {
	return "audit_plans"
}

// Finding records one audit result against one document. Non-compliant
// findings carry a remediation owner; compliant findings are born closed.
type Finding struct {
	ID          string        `json:"id" gorm:"primaryKey;type:uuid"`
	PlanID      string        `json:"plan_id" gorm:"not null;index"`
	DocumentID  string        `json:"document_id" gorm:"not null;index"`
	AuditResult AuditResult   `json:"audit_result" gorm:"not null"`
	IssueType   *string       `json:"issue_type,omitempty"`
	Description *string       `json:"description,omitempty"`
	Department  *string       `json:"department,omitempty"`
	AssigneeID  *int64        `json:"assignee_id,omitempty" gorm:"index"`
	Status      FindingStatus `json:"status" gorm:"not null"`
	Version     int64         `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Finding) TableName() string {
	return "audit_findings"
}

// IsOpenForRectification reports whether a rectification may be submitted.
func (f *Finding) IsOpenForRectification() bool {
	return f.Status == FindingOpen || f.Status == FindingRejected
}

// Rectification is one remediation submission for a finding. Rejected
// submissions stay in the history; a resubmission creates a new row.
type Rectification struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid"`
	FindingID       string     `json:"finding_id" gorm:"not null;index"`
	DocumentID      string     `json:"document_id" gorm:"not null"`
	DocVersion      int        `json:"doc_version" gorm:"not null"`
	Comment         *string    `json:"comment,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at" gorm:"not null"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
}

func (Rectification) TableName() string {
	return "rectifications"
}

// IsActive reports whether this submission still awaits a review outcome.
func (r *Rectification) IsActive() bool {
	return r.VerifiedAt == nil && r.RejectionReason == nil
}

var (
	ErrPlanNotFound            = internal.ErrPlanNotFound
	ErrFindingNotFound         = internal.ErrFindingNotFound
	ErrFindingNotOpen          = internal.ErrFindingNotOpen
	ErrIncompleteNonCompliance = internal.ErrIncompleteNonCompliance
	ErrInvalidPlanTransition   = internal.ErrInvalidPlanTransition
	ErrRectificationNotPending = internal.ErrRectificationNotPending
)
