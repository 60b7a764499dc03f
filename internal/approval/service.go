package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/ardiwinata/qms-compliance/internal/workflow"
	"github.com/google/uuid"
)

// Repository defines the data access methods for approval chains. Writes
// are transactional: the chain, its steps and the event log entries commit
// or roll back together, and version mismatches surface as
// ErrConcurrentModification.
type Repository interface {
	Create(ctx context.Context, chain *Chain, entries ...*eventlog.Entry) error
	GetByID(ctx context.Context, id string) (*Chain, error)
	GetByRecord(ctx context.Context, recordType, recordID string) (*Chain, error)
	ListPendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]*Chain, error)
	UpdateWithVersion(ctx context.Context, chain *Chain, expectedVersion int64, entries ...*eventlog.Entry) error
}

// RecordGateway is the callback into the owning record when its chain
// reaches a terminal state.
type RecordGateway interface {
	OnApproved(ctx context.Context, recordType, recordID string) error
	OnRejected(ctx context.Context, recordType, recordID, reason string) error
	OnCancelled(ctx context.Context, recordType, recordID string) error
}

// Notifier delivers fire-and-forget notifications after the state change
// commits.
type Notifier interface {
	Notify(principalID int64, eventKind string, payload map[string]any)
}

// Service is the approval chain engine.
type Service struct {
	repo      Repository
	directory identity.Directory
	perms     *permission.Service
	records   RecordGateway
	notifier  Notifier
	logger    *slog.Logger
}

func NewService(repo Repository, directory identity.Directory, perms *permission.Service, records RecordGateway, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		perms:     perms,
		records:   records,
		notifier:  notifier,
		logger:    logger,
	}
}

// Submit builds the ordered chain for a record and notifies the first
// approver. The graph shape is validated by the workflow composer before
// anything is persisted.
func (s *Service) Submit(ctx context.Context, creatorID int64, dto SubmitChainDTO) (*Chain, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if _, err := workflow.LinearApprovalGraph(len(dto.ApproverIDs)); err != nil {
		return nil, err
	}

	now := time.Now()
	chain := &Chain{
		ID:         uuid.NewString(),
		RecordID:   dto.RecordID,
		RecordType: dto.RecordType,
		CreatorID:  creatorID,
		Status:     ChainStatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, approverID := range dto.ApproverIDs {
		chain.Steps = append(chain.Steps, Step{
			ChainID:    chain.ID,
			Order:      i,
			ApproverID: approverID,
			Decision:   StepPending,
		})
	}

	entry := eventlog.NewEntry(creatorID, "approval.submit", permission.ResourceApprovalChain, chain.ID).
		WithDetail(map[string]any{"record_type": dto.RecordType, "record_id": dto.RecordID, "steps": len(chain.Steps)})
	if err := s.repo.Create(ctx, chain, entry); err != nil {
		s.logger.Error("failed to create approval chain", "error", err, "record_id", dto.RecordID)
		return nil, err
	}

	s.logger.Info("approval chain submitted",
		"chain_id", chain.ID,
		"record_type", dto.RecordType,
		"record_id", dto.RecordID,
		"steps", len(chain.Steps))

	s.notifier.Notify(chain.Steps[0].ApproverID, "approval.step_assigned", map[string]any{
		"chain_id":    chain.ID,
		"record_type": dto.RecordType,
		"record_id":   dto.RecordID,
	})

	return chain, nil
}

// Decide applies one approver's decision to the current step. Precondition
// checks run in a fixed order and nothing is persisted until all of them
// pass; the version check inside the repository turns a racing decision
// into ErrConcurrentModification instead of a double apply.
func (s *Service) Decide(ctx context.Context, deciderID int64, chainID string, dto DecideDTO) (*Chain, error) {
	chain, err := s.repo.GetByID(ctx, chainID)
	if err != nil {
		s.logger.Error("approval chain not found for decision", "error", err, "chain_id", chainID)
		return nil, err
	}

	if !chain.IsPending() {
		return nil, ErrAlreadyDecided
	}

	// Self-approval is excluded even for admins, so this check runs before
	// any permission evaluation.
	if deciderID == chain.CreatorID {
		s.logger.Warn("self-approval attempt rejected", "chain_id", chainID, "decider_id", deciderID)
		return nil, ErrSelfApprovalForbidden
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidReason)
	}

	step := chain.CurrentStep()
	if step == nil {
		return nil, ErrAlreadyDecided
	}

	effectiveApproverID, escalated, err := s.effectiveApprover(ctx, step.ApproverID)
	if err != nil {
		return nil, err
	}
	if deciderID != effectiveApproverID {
		return nil, ErrNotCurrentStep
	}

	decider, err := s.directory.GetPrincipal(ctx, deciderID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, decider, permission.ActionDecide, permission.Resource{Type: permission.ResourceApprovalChain, ID: chain.ID}, now); err != nil {
		return nil, err
	}

	expectedVersion := chain.Version
	step.Decision = dto.Action
	step.Comment = dto.Comment
	step.DecidedAt = &now

	detail := map[string]any{
		"step_order":  step.Order,
		"approver_id": step.ApproverID,
		"decider_id":  deciderID,
		"action":      string(dto.Action),
	}
	if escalated {
		detail["escalated_to"] = deciderID
	}

	var nextApproverID int64
	switch dto.Action {
	case StepApproved:
		node, advErr := s.advance(chain, step.Order)
		if advErr != nil {
			return nil, advErr
		}
		if node.Type == workflow.NodeEnd {
			chain.Status = ChainStatusApproved
			chain.DecidedAt = &now
		} else {
			chain.CurrentStepIndex++
			nextApproverID = chain.Steps[chain.CurrentStepIndex].ApproverID
		}
	case StepRejected:
		step.RejectionReason = dto.RejectionReason
		chain.Status = ChainStatusRejected
		chain.DecidedAt = &now
		detail["rejection_reason"] = *dto.RejectionReason
	}
	chain.Version++
	chain.UpdatedAt = now

	entry := eventlog.NewEntry(deciderID, "approval.decide", permission.ResourceApprovalChain, chain.ID).WithDetail(detail)
	if err := s.repo.UpdateWithVersion(ctx, chain, expectedVersion, entry); err != nil {
		s.logger.Error("failed to persist approval decision", "error", err, "chain_id", chain.ID)
		return nil, err
	}

	s.logger.Info("approval decision recorded",
		"chain_id", chain.ID,
		"step_order", step.Order,
		"action", dto.Action,
		"chain_status", chain.Status)

	// Side effects run only after the transition committed.
	switch chain.Status {
	case ChainStatusApproved:
		if err := s.records.OnApproved(ctx, chain.RecordType, chain.RecordID); err != nil {
			s.logger.Error("record approval callback failed", "error", err, "chain_id", chain.ID)
			return nil, err
		}
		s.notifier.Notify(chain.CreatorID, "approval.approved", map[string]any{"chain_id": chain.ID, "record_id": chain.RecordID})
	case ChainStatusRejected:
		if err := s.records.OnRejected(ctx, chain.RecordType, chain.RecordID, *dto.RejectionReason); err != nil {
			s.logger.Error("record rejection callback failed", "error", err, "chain_id", chain.ID)
			return nil, err
		}
		s.notifier.Notify(chain.CreatorID, "approval.rejected", map[string]any{"chain_id": chain.ID, "record_id": chain.RecordID, "reason": *dto.RejectionReason})
	default:
		s.notifier.Notify(nextApproverID, "approval.step_assigned", map[string]any{"chain_id": chain.ID, "record_id": chain.RecordID})
	}

	return chain, nil
}

// Cancel terminates a pending chain. Only the original submitter or an
// admin may cancel; a cancelled chain accepts no further decisions, and a
// second cancel fails with AlreadyDecided.
func (s *Service) Cancel(ctx context.Context, byID int64, chainID string) (*Chain, error) {
	chain, err := s.repo.GetByID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if !chain.IsPending() {
		return nil, ErrAlreadyDecided
	}

	by, err := s.directory.GetPrincipal(ctx, byID)
	if err != nil {
		return nil, err
	}
	if byID != chain.CreatorID && !by.IsAdmin() {
		return nil, internal.NewPermissionDeniedError("only the submitter or an admin may cancel")
	}
	now := time.Now()
	if err := s.perms.Require(ctx, by, permission.ActionCancel, permission.Resource{Type: permission.ResourceApprovalChain, ID: chain.ID}, now); err != nil {
		return nil, err
	}

	expectedVersion := chain.Version
	chain.Status = ChainStatusCancelled
	chain.DecidedAt = &now
	chain.UpdatedAt = now
	chain.Version++

	entry := eventlog.NewEntry(byID, "approval.cancel", permission.ResourceApprovalChain, chain.ID)
	if err := s.repo.UpdateWithVersion(ctx, chain, expectedVersion, entry); err != nil {
		s.logger.Error("failed to cancel approval chain", "error", err, "chain_id", chain.ID)
		return nil, err
	}

	s.logger.Info("approval chain cancelled", "chain_id", chain.ID, "by", byID)

	if err := s.records.OnCancelled(ctx, chain.RecordType, chain.RecordID); err != nil {
		s.logger.Error("record cancel callback failed", "error", err, "chain_id", chain.ID)
		return nil, err
	}

	return chain, nil
}

// GetChain returns a chain with its steps.
func (s *Service) GetChain(ctx context.Context, chainID string) (*Chain, error) {
	return s.repo.GetByID(ctx, chainID)
}

// ListPendingForApprover returns chains currently waiting on the approver.
func (s *Service) ListPendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]*Chain, error) {
	return s.repo.ListPendingForApprover(ctx, approverID, limit, offset)
}

// effectiveApprover resolves who may decide the step right now. A locked or
// inactive approver escalates to their configured superior, one hop only,
// so a dead account cannot stall a chain.
func (s *Service) effectiveApprover(ctx context.Context, approverID int64) (int64, bool, error) {
	approver, err := s.directory.GetPrincipal(ctx, approverID)
	if err != nil {
		return 0, false, err
	}
	if approver.CanAct() {
		return approver.ID, false, nil
	}

	superior, err := s.directory.SuperiorOf(ctx, approverID)
	if err != nil {
		return 0, false, err
	}
	s.logger.Info("approver escalated to superior",
		"approver_id", approverID,
		"superior_id", superior.ID)
	return superior.ID, true, nil
}

// advance replays the chain's linear graph up to the step being decided and
// returns the node that follows it.
func (s *Service) advance(chain *Chain, decidedOrder int) (*workflow.Node, error) {
	graph, err := workflow.LinearApprovalGraph(len(chain.Steps))
	if err != nil {
		return nil, err
	}
	inst, err := workflow.NewInstance(graph)
	if err != nil {
		return nil, err
	}
	var node *workflow.Node
	for i := 0; i <= decidedOrder+1; i++ {
		node, err = inst.Advance(workflow.Context{fmt.Sprintf("step_%d", i-1): "approved"})
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}
