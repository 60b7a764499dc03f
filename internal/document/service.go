package document

import (
	"context"
	"log/slog"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/approval"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/google/uuid"
)

// Repository is the transactional store for documents.
type Repository interface {
	Create(ctx context.Context, doc *Document, entries ...*eventlog.Entry) error
	GetByID(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, limit, offset int) ([]*Document, error)
	UpdateWithVersion(ctx context.Context, doc *Document, expectedVersion int64, entries ...*eventlog.Entry) error
	SoftDelete(ctx context.Context, id string, entries ...*eventlog.Entry) error
	PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error)
}

// ChainSubmitter is the slice of the approval service a document needs to
// start its review.
type ChainSubmitter interface {
	Submit(ctx context.Context, creatorID int64, dto approval.SubmitChainDTO) (*approval.Chain, error)
}

type Service struct {
	repo      Repository
	directory identity.Directory
	perms     *permission.Service
	chains    ChainSubmitter
	logger    *slog.Logger
}

func NewService(repo Repository, directory identity.Directory, perms *permission.Service, chains ChainSubmitter, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		perms:     perms,
		chains:    chains,
		logger:    logger,
	}
}

// Create registers a new draft document.
func (s *Service) Create(ctx context.Context, creatorID int64, dto CreateDocumentDTO) (*Document, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	creator, err := s.directory.GetPrincipal(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, creator, permission.ActionCreate, permission.Resource{Type: permission.ResourceDocument}, now); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:         uuid.NewString(),
		Number:     dto.Number,
		Title:      dto.Title,
		Category:   dto.Category,
		DocVersion: 1,
		Status:     StatusDraft,
		CreatorID:  creatorID,
		FilePath:   dto.FilePath,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	entry := eventlog.NewEntry(creatorID, "document.create", permission.ResourceDocument, doc.ID).
		WithDetail(map[string]any{"number": doc.Number, "category": doc.Category})
	if err := s.repo.Create(ctx, doc, entry); err != nil {
		s.logger.Error("failed to create document", "error", err, "number", dto.Number)
		return nil, err
	}

	s.logger.Info("document created", "document_id", doc.ID, "number", doc.Number)
	return doc, nil
}

// SubmitForApproval moves a draft into review and spawns its approval
// chain. The status change commits first; a failed chain submission rolls
// the document back to draft.
func (s *Service) SubmitForApproval(ctx context.Context, userID int64, dto SubmitForApprovalDTO) (*Document, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	doc, err := s.repo.GetByID(ctx, dto.DocumentID)
	if err != nil {
		return nil, err
	}
	if !doc.CanTransitionTo(StatusPendingApproval) {
		return nil, ErrInvalidDocumentStatus
	}

	user, err := s.directory.GetPrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, user, permission.ActionSubmit, permission.Resource{Type: permission.ResourceDocument, ID: doc.ID}, now); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, doc, StatusPendingApproval, userID, "document.submit"); err != nil {
		return nil, err
	}

	if _, err := s.chains.Submit(ctx, userID, approval.SubmitChainDTO{
		RecordID:    doc.ID,
		RecordType:  RecordType,
		ApproverIDs: dto.ApproverIDs,
	}); err != nil {
		s.logger.Error("approval chain submission failed, reverting document", "error", err, "document_id", doc.ID)
		if revertErr := s.transition(ctx, doc, StatusDraft, userID, "document.submit_revert"); revertErr != nil {
			s.logger.Error("failed to revert document to draft", "error", revertErr, "document_id", doc.ID)
		}
		return nil, err
	}

	s.logger.Info("document submitted for approval", "document_id", doc.ID, "approvers", len(dto.ApproverIDs))
	return doc, nil
}

// Archive retires an effective document while keeping it retrievable.
func (s *Service) Archive(ctx context.Context, userID int64, docID string) (*Document, error) {
	return s.userTransition(ctx, userID, docID, StatusArchived, permission.ActionArchive, "document.archive")
}

// MarkObsolete withdraws an effective or archived document from use.
func (s *Service) MarkObsolete(ctx context.Context, userID int64, docID string) (*Document, error) {
	return s.userTransition(ctx, userID, docID, StatusObsolete, permission.ActionObsolete, "document.obsolete")
}

// Delete soft-deletes a draft. Only the creator or an admin may delete;
// non-draft documents must go through archival instead.
func (s *Service) Delete(ctx context.Context, userID int64, docID string) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status != StatusDraft {
		return ErrInvalidDocumentStatus
	}

	user, err := s.directory.GetPrincipal(ctx, userID)
	if err != nil {
		return err
	}
	if userID != doc.CreatorID && !user.IsAdmin() {
		return internal.NewPermissionDeniedError("only the creator or an admin may delete a draft")
	}
	now := time.Now()
	if err := s.perms.Require(ctx, user, permission.ActionDelete, permission.Resource{Type: permission.ResourceDocument, ID: doc.ID}, now); err != nil {
		return err
	}

	entry := eventlog.NewEntry(userID, "document.delete", permission.ResourceDocument, doc.ID)
	if err := s.repo.SoftDelete(ctx, docID, entry); err != nil {
		s.logger.Error("failed to soft delete document", "error", err, "document_id", docID)
		return err
	}

	s.logger.Info("document soft deleted", "document_id", docID)
	return nil
}

// PurgeExpiredSoftDeletes removes soft-deleted documents older than the
// cutoff. Idempotent; invoked by the housekeeping scheduler.
func (s *Service) PurgeExpiredSoftDeletes(ctx context.Context, before time.Time) (int64, error) {
	purged, err := s.repo.PurgeSoftDeleted(ctx, before)
	if err != nil {
		s.logger.Error("recycle bin purge failed", "error", err)
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("recycle bin purged", "documents", purged, "before", before)
	}
	return purged, nil
}

// GetByID returns one document.
func (s *Service) GetByID(ctx context.Context, docID string) (*Document, error) {
	return s.repo.GetByID(ctx, docID)
}

// List returns documents newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	return s.repo.List(ctx, limit, offset)
}

// OnApproved makes the document effective once its chain fully approved.
func (s *Service) OnApproved(ctx context.Context, recordType, recordID string) error {
	return s.chainTransition(ctx, recordType, recordID, StatusEffective, "document.effective", nil)
}

// OnRejected returns the document to draft for rework.
func (s *Service) OnRejected(ctx context.Context, recordType, recordID, reason string) error {
	return s.chainTransition(ctx, recordType, recordID, StatusDraft, "document.approval_rejected", map[string]any{"reason": reason})
}

// OnCancelled returns the document to draft after a withdrawn submission.
func (s *Service) OnCancelled(ctx context.Context, recordType, recordID string) error {
	return s.chainTransition(ctx, recordType, recordID, StatusDraft, "document.approval_cancelled", nil)
}

func (s *Service) userTransition(ctx context.Context, userID int64, docID string, next Status, action, logAction string) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.CanTransitionTo(next) {
		return nil, ErrInvalidDocumentStatus
	}

	user, err := s.directory.GetPrincipal(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.perms.Require(ctx, user, action, permission.Resource{Type: permission.ResourceDocument, ID: doc.ID}, now); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, doc, next, userID, logAction); err != nil {
		return nil, err
	}
	s.logger.Info("document transitioned", "document_id", doc.ID, "status", next)
	return doc, nil
}

// chainTransition applies an approval-chain outcome. The chain engine is
// the system actor here; permission checks already happened per step.
func (s *Service) chainTransition(ctx context.Context, recordType, recordID string, next Status, logAction string, detail map[string]any) error {
	if recordType != RecordType {
		return nil
	}
	doc, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if !doc.CanTransitionTo(next) {
		return ErrInvalidDocumentStatus
	}
	if err := s.transition(ctx, doc, next, doc.CreatorID, logAction, detail); err != nil {
		return err
	}
	s.logger.Info("document transitioned by approval outcome", "document_id", doc.ID, "status", next)
	return nil
}

func (s *Service) transition(ctx context.Context, doc *Document, next Status, actorID int64, logAction string, detail ...map[string]any) error {
	now := time.Now()
	expectedVersion := doc.Version
	from := doc.Status
	doc.Status = next
	doc.Version++
	doc.UpdatedAt = now

	detailMap := map[string]any{"from": string(from), "to": string(next)}
	if len(detail) > 0 {
		for k, v := range detail[0] {
			detailMap[k] = v
		}
	}
	entry := eventlog.NewEntry(actorID, logAction, permission.ResourceDocument, doc.ID).WithDetail(detailMap)
	return s.repo.UpdateWithVersion(ctx, doc, expectedVersion, entry)
}
