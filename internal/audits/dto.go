package audits

import (
	"errors"
	"strings"
	"time"
)

// CreatePlanDTO is the request payload for a new audit plan.
type CreatePlanDTO struct {
	Title       string    `json:"title" validate:"required"`
	Type        PlanType  `json:"type" validate:"required"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	AuditorID   int64     `json:"auditor_id" validate:"required"`
	DocumentIDs []string  `json:"document_ids" validate:"required,min=1"`
}

func (dto CreatePlanDTO) Validate() error {
	if strings.TrimSpace(dto.Title) == "" {
		return errors.New("title is required")
	}
	switch dto.Type {
	case PlanQuarterly, PlanSemiannual, PlanAnnual:
	default:
		return errors.New("type must be quarterly, semiannual or annual")
	}
	if dto.StartDate.IsZero() || dto.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if !dto.EndDate.After(dto.StartDate) {
		return errors.New("end_date must be after start_date")
	}
	if dto.AuditorID == 0 {
		return errors.New("auditor_id is required")
	}
	if len(dto.DocumentIDs) == 0 {
		return errors.New("at least one document_id is required")
	}
	return nil
}

// RecordFindingDTO is the request payload for one audit result. The
// remediation fields are mandatory only for non-compliant results; that
// rule lives in the service so it can fail with the dedicated error kind.
type RecordFindingDTO struct {
	PlanID      string      `json:"plan_id" validate:"required"`
	DocumentID  string      `json:"document_id" validate:"required"`
	AuditResult AuditResult `json:"audit_result" validate:"required"`
	IssueType   *string     `json:"issue_type,omitempty"`
	Description *string     `json:"description,omitempty"`
	Department  *string     `json:"department,omitempty"`
	AssigneeID  *int64      `json:"assignee_id,omitempty"`
}

func (dto RecordFindingDTO) Validate() error {
	if dto.PlanID == "" {
		return errors.New("plan_id is required")
	}
	if dto.DocumentID == "" {
		return errors.New("document_id is required")
	}
	switch dto.AuditResult {
	case ResultCompliant, ResultNonCompliant:
	default:
		return errors.New("audit_result must be compliant or non_compliant")
	}
	return nil
}

// RemediationComplete reports whether every field a non-compliant finding
// needs is populated.
func (dto RecordFindingDTO) RemediationComplete() bool {
	if dto.IssueType == nil || strings.TrimSpace(*dto.IssueType) == "" {
		return false
	}
	if dto.Description == nil || len(strings.TrimSpace(*dto.Description)) < MinReasonLen {
		return false
	}
	if dto.Department == nil || strings.TrimSpace(*dto.Department) == "" {
		return false
	}
	if dto.AssigneeID == nil || *dto.AssigneeID == 0 {
		return false
	}
	return true
}

// SubmitRectificationDTO is the request payload for a remediation
// submission against an open or rejected finding.
type SubmitRectificationDTO struct {
	FindingID  string  `json:"finding_id" validate:"required"`
	DocumentID string  `json:"document_id" validate:"required"`
	DocVersion int     `json:"doc_version" validate:"required,min=1"`
	Comment    *string `json:"comment,omitempty"`
}

func (dto SubmitRectificationDTO) Validate() error {
	if dto.FindingID == "" {
		return errors.New("finding_id is required")
	}
	if dto.DocumentID == "" {
		return errors.New("document_id is required")
	}
	if dto.DocVersion < 1 {
		return errors.New("doc_version must be at least 1")
	}
	return nil
}

// RejectRectificationDTO is the request payload for sending a submission
// back to its assignee.
type RejectRectificationDTO struct {
	RejectionReason string `json:"rejection_reason" validate:"required,min=10"`
}

func (dto RejectRectificationDTO) Validate() error {
	if len(strings.TrimSpace(dto.RejectionReason)) < MinReasonLen {
		return errors.New("rejection_reason must be at least 10 characters")
	}
	return nil
}
