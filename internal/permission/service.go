package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/google/uuid"
)

// Repository defines the data access methods for grants.
type Repository interface {
	Create(ctx context.Context, grant *Grant) error
	GetByID(ctx context.Context, id string) (*Grant, error)
	// ListActiveForUser returns the user's unrevoked grants. Expiry is NOT
	// filtered here; the engine compares it against the evaluation instant.
	ListActiveForUser(ctx context.Context, userID int64) ([]*Grant, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Grant, error)
	// Revoke marks the grant revoked iff it is not already revoked.
	// Returns ErrGrantAlreadyRevoked otherwise.
	Revoke(ctx context.Context, id string, by int64, at time.Time) error
}

// Service is the permission engine: role defaults plus fine-grained grants,
// every evaluation logged.
type Service struct {
	repo          Repository
	policies      PolicyTable
	adminExcluded map[string]bool
	log           eventlog.Sink
	logger        *slog.Logger
}

func NewService(repo Repository, policies PolicyTable, log eventlog.Sink, logger *slog.Logger) *Service {
	if policies == nil {
		policies = DefaultPolicyTable()
	}
	return &Service{
		repo:          repo,
		policies:      policies,
		adminExcluded: map[string]bool{},
		log:           log,
		logger:        logger,
	}
}

// ExcludeAdminOverride flags an action so the superuser shortcut does not
// apply to it. Self-approval is enforced by the approval engine itself, so
// the flag exists for policies that must bind admins too.
func (s *Service) ExcludeAdminOverride(actions ...string) {
	for _, a := range actions {
		s.adminExcluded[a] = true
	}
}

// Authorize decides whether principal may perform action on res at the given
// instant. Every evaluation, allow or deny, is appended to the event log;
// a failed log write aborts the evaluation.
func (s *Service) Authorize(ctx context.Context, principal *identity.Principal, action string, res Resource, at time.Time) (Decision, error) {
	decision, err := s.evaluate(ctx, principal, action, res, at)
	if err != nil {
		return Decision{}, err
	}

	entry := eventlog.NewEntry(principal.ID, res.Type+"."+action, res.Type, res.ID).
		WithDecision(decisionString(decision), decision.Rule)
	if !decision.Allowed {
		entry.WithDetail(map[string]any{"reason": decision.Reason})
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Error("permission decision log append failed",
			"error", err,
			"user_id", principal.ID,
			"action", action,
			"resource_type", res.Type,
			"resource_id", res.ID)
		return Decision{}, internal.NewInternalError("failed to record permission decision", err)
	}

	if !decision.Allowed {
		s.logger.Warn("authorization denied",
			"user_id", principal.ID,
			"action", action,
			"resource_type", res.Type,
			"resource_id", res.ID,
			"reason", decision.Reason)
	}

	return decision, nil
}

// Require is Authorize collapsed into an error: nil on allow,
// PermissionDenied on deny.
func (s *Service) Require(ctx context.Context, principal *identity.Principal, action string, res Resource, at time.Time) error {
	decision, err := s.Authorize(ctx, principal, action, res, at)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return internal.NewPermissionDeniedError(decision.Reason)
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, principal *identity.Principal, action string, res Resource, at time.Time) (Decision, error) {
	if !principal.IsActive {
		return Decision{Allowed: false, Reason: DenyAccountInactive}, nil
	}
	if principal.IsLocked {
		return Decision{Allowed: false, Reason: DenyAccountLocked}, nil
	}

	if principal.IsAdmin() && !s.adminExcluded[action] {
		return Decision{Allowed: true, Rule: RuleSuperuser}, nil
	}

	if allowed, ok := s.policies[PolicyKey{principal.Role, res.Type, action}]; ok {
		if allowed {
			return Decision{Allowed: true, Rule: RuleRoleDefault}, nil
		}
		return Decision{Allowed: false, Reason: DenyNoGrant, Rule: RuleRoleDefault}, nil
	}

	grants, err := s.repo.ListActiveForUser(ctx, principal.ID)
	if err != nil {
		return Decision{}, err
	}

	var winner *Grant
	for _, g := range grants {
		if !g.EffectiveAt(at) || !g.Covers(action, res) {
			continue
		}
		if winner == nil || g.Specificity() > winner.Specificity() {
			winner = g
		}
	}
	if winner != nil {
		return Decision{Allowed: true, Rule: "grant:" + winner.ID}, nil
	}

	return Decision{Allowed: false, Reason: DenyNoGrant}, nil
}

// GrantPermission creates one fine-grained grant.
func (s *Service) GrantPermission(ctx context.Context, grantor *identity.Principal, dto GrantPermissionDTO) (*Grant, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if err := s.Require(ctx, grantor, ActionGrant, Resource{Type: ResourcePermission, ID: dto.PermissionID}, time.Now()); err != nil {
		return nil, err
	}

	grant := &Grant{
		ID:           uuid.NewString(),
		UserID:       dto.UserID,
		PermissionID: dto.PermissionID,
		ResourceType: dto.ResourceType,
		ResourceID:   dto.ResourceID,
		Reason:       dto.Reason,
		GrantedBy:    grantor.ID,
		GrantedAt:    time.Now(),
		ExpiresAt:    dto.ExpiresAt,
	}

	if err := s.repo.Create(ctx, grant); err != nil {
		s.logger.Error("failed to create grant", "error", err, "user_id", dto.UserID, "permission_id", dto.PermissionID)
		return nil, err
	}

	entry := eventlog.NewEntry(grantor.ID, "permission.grant", ResourcePermission, grant.ID).
		WithDetail(map[string]any{"user_id": dto.UserID, "permission_id": dto.PermissionID, "reason": dto.Reason})
	if err := s.log.Append(ctx, entry); err != nil {
		return nil, internal.NewInternalError("failed to record grant", err)
	}

	s.logger.Info("permission granted",
		"grant_id", grant.ID,
		"user_id", dto.UserID,
		"permission_id", dto.PermissionID,
		"granted_by", grantor.ID)

	return grant, nil
}

// RevokeGrant revokes one grant. Grants are never edited in place or
// deleted; a new grant replaces a revoked one.
func (s *Service) RevokeGrant(ctx context.Context, revoker *identity.Principal, grantID string) error {
	if err := s.Require(ctx, revoker, ActionRevoke, Resource{Type: ResourcePermission, ID: grantID}, time.Now()); err != nil {
		return err
	}

	if err := s.repo.Revoke(ctx, grantID, revoker.ID, time.Now()); err != nil {
		s.logger.Error("failed to revoke grant", "error", err, "grant_id", grantID)
		return err
	}

	entry := eventlog.NewEntry(revoker.ID, "permission.revoke", ResourcePermission, grantID)
	if err := s.log.Append(ctx, entry); err != nil {
		return internal.NewInternalError("failed to record revocation", err)
	}

	s.logger.Info("permission revoked", "grant_id", grantID, "revoked_by", revoker.ID)
	return nil
}

// BatchGrant processes every (user, permission) pair independently and
// reports each outcome. One failing pair does not roll back the others.
func (s *Service) BatchGrant(ctx context.Context, grantor *identity.Principal, dto BatchGrantDTO) ([]BatchGrantResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	results := make([]BatchGrantResult, 0, len(dto.UserIDs)*len(dto.PermissionIDs))
	for _, userID := range dto.UserIDs {
		for _, permissionID := range dto.PermissionIDs {
			result := BatchGrantResult{UserID: userID, PermissionID: permissionID}

			grant, err := s.GrantPermission(ctx, grantor, GrantPermissionDTO{
				UserID:       userID,
				PermissionID: permissionID,
				ResourceType: dto.ResourceType,
				ResourceID:   dto.ResourceID,
				Reason:       dto.Reason,
				ExpiresAt:    dto.ExpiresAt,
			})
			if err != nil {
				result.Error = err.Error()
			} else {
				result.GrantID = grant.ID
			}
			results = append(results, result)
		}
	}

	return results, nil
}

// ListGrantsForUser returns the user's grant history, revoked included.
func (s *Service) ListGrantsForUser(ctx context.Context, userID int64, limit, offset int) ([]*Grant, error) {
	grants, err := s.repo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list grants", "error", err, "user_id", userID)
		return nil, err
	}
	return grants, nil
}

func decisionString(d Decision) string {
	if d.Allowed {
		return "allow"
	}
	return fmt.Sprintf("deny:%s", d.Reason)
}
