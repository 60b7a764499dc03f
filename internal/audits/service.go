package audits

import (
	"context"
	"log/slog"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/ardiwinata/qms-compliance/internal/workflow"
	"github.com/google/uuid"
)

// Repository is the transactional store for plans, findings and
// rectifications. Mutating methods persist the entity, the plan whose
// status was recomputed, and the event log entries in one transaction;
// version mismatches surface as ConcurrentModification.
type Repository interface {
	CreatePlan(ctx context.Context, plan *Plan, entries ...*eventlog.Entry) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context, limit, offset int) ([]*Plan, error)
	UpdatePlanWithVersion(ctx context.Context, plan *Plan, expectedVersion int64, entries ...*eventlog.Entry) error

	CreateFinding(ctx context.Context, finding *Finding, plan *Plan, planVersion int64, entries ...*eventlog.Entry) error
	GetFinding(ctx context.Context, id string) (*Finding, error)
	ListFindingsForPlan(ctx context.Context, planID string) ([]*Finding, error)
	TransitionFinding(ctx context.Context, finding *Finding, expectedVersion int64, rect *Rectification, plan *Plan, planVersion int64, entries ...*eventlog.Entry) error

	ActiveRectification(ctx context.Context, findingID string) (*Rectification, error)
	ListRectifications(ctx context.Context, findingID string) ([]*Rectification, error)
}

// Notifier delivers fire-and-forget notifications after a transition
// committed.
type Notifier interface {
	Notify(principalID int64, eventKind string, payload map[string]any)
}

type Service struct {
	repo      Repository
	directory identity.Directory
	perms     *permission.Service
	notifier  Notifier
	logger    *slog.Logger
}

func NewService(repo Repository, directory identity.Directory, perms *permission.Service, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		perms:     perms,
		notifier:  notifier,
		logger:    logger,
	}
}

// CreatePlan registers a new audit plan in draft.
func (s *Service) CreatePlan(ctx context.Context, creatorID int64, dto CreatePlanDTO) (*Plan, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	creator, err := s.directory.GetPrincipal(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, creator, permission.ActionCreate, permission.Resource{Type: permission.ResourceAuditPlan}, now); err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:          uuid.NewString(),
		Title:       dto.Title,
		Type:        dto.Type,
		StartDate:   dto.StartDate,
		EndDate:     dto.EndDate,
		AuditorID:   dto.AuditorID,
		DocumentIDs: dto.DocumentIDs,
		Status:      PlanDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry := eventlog.NewEntry(creatorID, "audit.plan_create", permission.ResourceAuditPlan, plan.ID).
		WithDetail(map[string]any{"title": plan.Title, "type": string(plan.Type), "documents": len(plan.DocumentIDs)})
	if err := s.repo.CreatePlan(ctx, plan, entry); err != nil {
		s.logger.Error("failed to create audit plan", "error", err, "title", dto.Title)
		return nil, err
	}

	s.logger.Info("audit plan created", "plan_id", plan.ID, "type", plan.Type, "auditor_id", plan.AuditorID)
	return plan, nil
}

// StartExecution moves a draft plan to ongoing. The transition is an
// explicit action rather than inferred from the start date, so plans never
// begin without an auditor's say-so.
func (s *Service) StartExecution(ctx context.Context, actorID int64, planID string) (*Plan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != PlanDraft {
		return nil, ErrInvalidPlanTransition
	}

	actor, err := s.directory.GetPrincipal(ctx, actorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, actor, permission.ActionSubmit, permission.Resource{Type: permission.ResourceAuditPlan, ID: plan.ID}, now); err != nil {
		return nil, err
	}

	expectedVersion := plan.Version
	plan.Status = PlanOngoing
	plan.Version++
	plan.UpdatedAt = now

	entry := eventlog.NewEntry(actorID, "audit.plan_start", permission.ResourceAuditPlan, plan.ID)
	if err := s.repo.UpdatePlanWithVersion(ctx, plan, expectedVersion, entry); err != nil {
		s.logger.Error("failed to start audit plan", "error", err, "plan_id", plan.ID)
		return nil, err
	}

	s.logger.Info("audit plan execution started", "plan_id", plan.ID)
	return plan, nil
}

// CompleteExecution closes an ongoing plan whose findings are all resolved.
// Plans with unresolved findings complete on their own once the last
// finding is verified; this is the explicit path for all-compliant audits.
func (s *Service) CompleteExecution(ctx context.Context, actorID int64, planID string) (*Plan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != PlanOngoing {
		return nil, ErrInvalidPlanTransition
	}

	findings, err := s.repo.ListFindingsForPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	for _, f := range findings {
		if f.Status != FindingClosed {
			return nil, ErrInvalidPlanTransition
		}
	}

	actor, err := s.directory.GetPrincipal(ctx, actorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, actor, permission.ActionSubmit, permission.Resource{Type: permission.ResourceAuditPlan, ID: plan.ID}, now); err != nil {
		return nil, err
	}

	expectedVersion := plan.Version
	plan.Status = PlanCompleted
	plan.Version++
	plan.UpdatedAt = now

	entry := eventlog.NewEntry(actorID, "audit.plan_complete", permission.ResourceAuditPlan, plan.ID)
	if err := s.repo.UpdatePlanWithVersion(ctx, plan, expectedVersion, entry); err != nil {
		return nil, err
	}

	s.logger.Info("audit plan completed", "plan_id", plan.ID)
	return plan, nil
}

// RecordFinding stores one audit result. Compliant findings close
// immediately; non-compliant findings open with a full remediation record
// or fail with IncompleteNonComplianceData.
func (s *Service) RecordFinding(ctx context.Context, auditorID int64, dto RecordFindingDTO) (*Finding, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if dto.AuditResult == ResultNonCompliant && !dto.RemediationComplete() {
		return nil, ErrIncompleteNonCompliance
	}

	plan, err := s.repo.GetPlan(ctx, dto.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Status != PlanOngoing && plan.Status != PlanPendingRectification {
		return nil, ErrInvalidPlanTransition
	}

	auditor, err := s.directory.GetPrincipal(ctx, auditorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, auditor, permission.ActionCreate, permission.Resource{Type: permission.ResourceAuditFinding}, now); err != nil {
		return nil, err
	}

	finding := &Finding{
		ID:          uuid.NewString(),
		PlanID:      dto.PlanID,
		DocumentID:  dto.DocumentID,
		AuditResult: dto.AuditResult,
		IssueType:   dto.IssueType,
		Description: dto.Description,
		Department:  dto.Department,
		AssigneeID:  dto.AssigneeID,
		Status:      FindingOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if dto.AuditResult == ResultCompliant {
		finding.Status = FindingClosed
	}

	planVersion := plan.Version
	s.recomputePlanStatusOnCreate(plan, finding, now)

	entry := eventlog.NewEntry(auditorID, "audit.finding_record", permission.ResourceAuditFinding, finding.ID).
		WithDetail(map[string]any{
			"plan_id":     plan.ID,
			"document_id": finding.DocumentID,
			"result":      string(finding.AuditResult),
			"status":      string(finding.Status),
		})
	if err := s.repo.CreateFinding(ctx, finding, plan, planVersion, entry); err != nil {
		s.logger.Error("failed to record audit finding", "error", err, "plan_id", plan.ID)
		return nil, err
	}

	s.logger.Info("audit finding recorded",
		"finding_id", finding.ID,
		"plan_id", plan.ID,
		"result", finding.AuditResult,
		"plan_status", plan.Status)

	if finding.AssigneeID != nil {
		s.notifier.Notify(*finding.AssigneeID, "audit.finding_assigned", map[string]any{
			"finding_id":  finding.ID,
			"plan_id":     plan.ID,
			"document_id": finding.DocumentID,
		})
	}
	return finding, nil
}

// SubmitRectification records a remediation attempt for an open or
// rejected finding and moves it under review.
func (s *Service) SubmitRectification(ctx context.Context, submitterID int64, dto SubmitRectificationDTO) (*Finding, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	finding, err := s.repo.GetFinding(ctx, dto.FindingID)
	if err != nil {
		return nil, err
	}
	if !finding.IsOpenForRectification() {
		return nil, ErrFindingNotOpen
	}

	submitter, err := s.directory.GetPrincipal(ctx, submitterID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, submitter, permission.ActionSubmit, permission.Resource{Type: permission.ResourceAuditFinding, ID: finding.ID}, now); err != nil {
		return nil, err
	}

	rect := &Rectification{
		ID:          uuid.NewString(),
		FindingID:   finding.ID,
		DocumentID:  dto.DocumentID,
		DocVersion:  dto.DocVersion,
		Comment:     dto.Comment,
		SubmittedAt: now,
	}

	expectedVersion := finding.Version
	finding.Status = FindingRectificationSubmitted
	finding.Version++
	finding.UpdatedAt = now

	plan, planVersion, err := s.recomputedPlan(ctx, finding, now)
	if err != nil {
		return nil, err
	}

	entry := eventlog.NewEntry(submitterID, "audit.rectification_submit", permission.ResourceAuditFinding, finding.ID).
		WithDetail(map[string]any{"rectification_id": rect.ID, "document_id": rect.DocumentID, "doc_version": rect.DocVersion})
	if err := s.repo.TransitionFinding(ctx, finding, expectedVersion, rect, plan, planVersion, entry); err != nil {
		s.logger.Error("failed to submit rectification", "error", err, "finding_id", finding.ID)
		return nil, err
	}

	s.logger.Info("rectification submitted", "finding_id", finding.ID, "rectification_id", rect.ID)
	return finding, nil
}

// Verify accepts the pending rectification. The verifier must differ from
// the finding's assignee; a verified finding closes in the same call.
func (s *Service) Verify(ctx context.Context, verifierID int64, findingID string, comment *string) (*Finding, error) {
	finding, err := s.repo.GetFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if finding.Status != FindingRectificationSubmitted {
		return nil, ErrRectificationNotPending
	}
	if finding.AssigneeID != nil && verifierID == *finding.AssigneeID {
		return nil, internal.NewPermissionDeniedError("verifier must not be the finding assignee")
	}

	verifier, err := s.directory.GetPrincipal(ctx, verifierID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, verifier, permission.ActionVerify, permission.Resource{Type: permission.ResourceAuditFinding, ID: finding.ID}, now); err != nil {
		return nil, err
	}

	rect, err := s.repo.ActiveRectification(ctx, findingID)
	if err != nil {
		return nil, err
	}

	outcome, err := reviewOutcome(true)
	if err != nil {
		return nil, err
	}

	expectedVersion := finding.Version
	rect.VerifiedAt = &now
	finding.Status = FindingClosed
	finding.Version++
	finding.UpdatedAt = now

	plan, planVersion, err := s.recomputedPlan(ctx, finding, now)
	if err != nil {
		return nil, err
	}

	// The submitter's remediation comment stays on the rectification row;
	// the verifier's note and the pass-through verified step live in the log.
	detail := map[string]any{
		"rectification_id": rect.ID,
		"outcome":          outcome,
		"status_via":       string(FindingVerified),
		"plan_status":      string(plan.Status),
	}
	if comment != nil {
		detail["verifier_comment"] = *comment
	}
	entry := eventlog.NewEntry(verifierID, "audit.rectification_verify", permission.ResourceAuditFinding, finding.ID).
		WithDetail(detail)
	if err := s.repo.TransitionFinding(ctx, finding, expectedVersion, rect, plan, planVersion, entry); err != nil {
		s.logger.Error("failed to verify rectification", "error", err, "finding_id", finding.ID)
		return nil, err
	}

	s.logger.Info("rectification verified",
		"finding_id", finding.ID,
		"rectification_id", rect.ID,
		"plan_status", plan.Status)

	if finding.AssigneeID != nil {
		s.notifier.Notify(*finding.AssigneeID, "audit.rectification_verified", map[string]any{"finding_id": finding.ID})
	}
	return finding, nil
}

// Reject sends the pending rectification back to its assignee with a
// reason of at least ten characters. The finding becomes eligible for
// resubmission.
func (s *Service) Reject(ctx context.Context, verifierID int64, findingID string, dto RejectRectificationDTO) (*Finding, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidReason)
	}

	finding, err := s.repo.GetFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if finding.Status != FindingRectificationSubmitted {
		return nil, ErrRectificationNotPending
	}
	if finding.AssigneeID != nil && verifierID == *finding.AssigneeID {
		return nil, internal.NewPermissionDeniedError("verifier must not be the finding assignee")
	}

	verifier, err := s.directory.GetPrincipal(ctx, verifierID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, verifier, permission.ActionReject, permission.Resource{Type: permission.ResourceAuditFinding, ID: finding.ID}, now); err != nil {
		return nil, err
	}

	rect, err := s.repo.ActiveRectification(ctx, findingID)
	if err != nil {
		return nil, err
	}

	outcome, err := reviewOutcome(false)
	if err != nil {
		return nil, err
	}

	expectedVersion := finding.Version
	rect.RejectionReason = &dto.RejectionReason
	finding.Status = FindingRejected
	finding.Version++
	finding.UpdatedAt = now

	plan, planVersion, err := s.recomputedPlan(ctx, finding, now)
	if err != nil {
		return nil, err
	}

	entry := eventlog.NewEntry(verifierID, "audit.rectification_reject", permission.ResourceAuditFinding, finding.ID).
		WithDetail(map[string]any{"rectification_id": rect.ID, "outcome": outcome, "reason": dto.RejectionReason})
	if err := s.repo.TransitionFinding(ctx, finding, expectedVersion, rect, plan, planVersion, entry); err != nil {
		s.logger.Error("failed to reject rectification", "error", err, "finding_id", finding.ID)
		return nil, err
	}

	s.logger.Info("rectification rejected", "finding_id", finding.ID, "rectification_id", rect.ID)

	if finding.AssigneeID != nil {
		s.notifier.Notify(*finding.AssigneeID, "audit.rectification_rejected", map[string]any{
			"finding_id": finding.ID,
			"reason":     dto.RejectionReason,
		})
	}
	return finding, nil
}

// GetPlan returns one plan.
func (s *Service) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	return s.repo.GetPlan(ctx, planID)
}

// ListPlans returns plans newest first.
func (s *Service) ListPlans(ctx context.Context, limit, offset int) ([]*Plan, error) {
	return s.repo.ListPlans(ctx, limit, offset)
}

// GetFinding returns one finding.
func (s *Service) GetFinding(ctx context.Context, findingID string) (*Finding, error) {
	return s.repo.GetFinding(ctx, findingID)
}

// ListFindingsForPlan returns the plan's findings.
func (s *Service) ListFindingsForPlan(ctx context.Context, planID string) ([]*Finding, error) {
	return s.repo.ListFindingsForPlan(ctx, planID)
}

// ListRectifications returns a finding's full remediation history.
func (s *Service) ListRectifications(ctx context.Context, findingID string) ([]*Rectification, error) {
	return s.repo.ListRectifications(ctx, findingID)
}

// recomputePlanStatusOnCreate adjusts the plan after a finding is born.
// Creation can push a plan into pending_rectification but never completes
// one; completion needs an actual review outcome or CompleteExecution.
func (s *Service) recomputePlanStatusOnCreate(plan *Plan, finding *Finding, now time.Time) {
	if finding.Status != FindingClosed && plan.Status != PlanPendingRectification {
		plan.Status = PlanPendingRectification
		plan.Version++
		plan.UpdatedAt = now
	}
}

// recomputedPlan loads the finding's plan and derives its status from the
// sibling findings plus the in-flight transition. Once pending_rectification,
// a plan moves only forward to completed, never back to ongoing.
func (s *Service) recomputedPlan(ctx context.Context, finding *Finding, now time.Time) (*Plan, int64, error) {
	plan, err := s.repo.GetPlan(ctx, finding.PlanID)
	if err != nil {
		return nil, 0, err
	}
	siblings, err := s.repo.ListFindingsForPlan(ctx, finding.PlanID)
	if err != nil {
		return nil, 0, err
	}

	allClosed := true
	for _, f := range siblings {
		status := f.Status
		if f.ID == finding.ID {
			status = finding.Status
		}
		if status != FindingClosed {
			allClosed = false
			break
		}
	}

	planVersion := plan.Version
	next := plan.Status
	if allClosed {
		next = PlanCompleted
	} else if plan.Status != PlanDraft {
		next = PlanPendingRectification
	}
	if next != plan.Status {
		plan.Status = next
		plan.Version++
		plan.UpdatedAt = now
	}
	return plan, planVersion, nil
}

// reviewOutcome replays the rectification review workflow to its terminal
// node for the given verdict.
func reviewOutcome(verified bool) (string, error) {
	g, err := workflow.RectificationReviewGraph()
	if err != nil {
		return "", err
	}
	inst, err := workflow.NewInstance(g)
	if err != nil {
		return "", err
	}
	if _, err := inst.Advance(nil); err != nil {
		return "", err
	}
	node, err := inst.Advance(workflow.Context{"verified": verified})
	if err != nil {
		return "", err
	}
	return node.ID, nil
}
