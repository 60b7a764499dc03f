package permission

import (
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/identity"
)

// Resource type names used across the policy table and grant scopes.
const (
	ResourceDocument      = "document"
	ResourceApprovalChain = "approval_chain"
	ResourceAuditPlan     = "audit_plan"
	ResourceAuditFinding  = "audit_finding"
	ResourcePermission    = "permission"
)

// Actions evaluated by the engine.
const (
	ActionRead     = "read"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionSubmit   = "submit"
	ActionDecide   = "decide"
	ActionCancel   = "cancel"
	ActionExport   = "export"
	ActionArchive  = "archive"
	ActionObsolete = "obsolete"
	ActionVerify   = "verify"
	ActionReject   = "reject"
	ActionGrant    = "grant"
	ActionRevoke   = "revoke"
)

// Resource identifies the target of an authorization check.
type Resource struct {
	Type string
	ID   string
}

// Grant is a fine-grained permission narrower than a role, optionally
// scoped to one resource instance and optionally time-bounded. Grants are
// never hard-deleted; revocation is the only mutation.
type Grant struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       int64      `json:"user_id" gorm:"not null;index"`
	PermissionID string     `json:"permission_id" gorm:"not null;index"`
	ResourceType *string    `json:"resource_type,omitempty" gorm:"column:resource_type"`
	ResourceID   *string    `json:"resource_id,omitempty" gorm:"column:resource_id"`
	Reason       string     `json:"reason" gorm:"not null"`
	GrantedBy    int64      `json:"granted_by" gorm:"not null"`
	GrantedAt    time.Time  `json:"granted_at" gorm:"not null"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
}

func (Grant) TableName() string {
	return "permission_grants"
}

// EffectiveAt reports whether the grant authorizes anything at time t.
// Expiry is compared against the supplied instant, never against a cached
// clock reading.
func (g *Grant) EffectiveAt(t time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(t) {
		return false
	}
	return true
}

// Covers reports whether the grant's permission and scope apply to the
// action on the given resource.
func (g *Grant) Covers(action string, res Resource) bool {
	if g.PermissionID != res.Type+"."+action && g.PermissionID != action {
		return false
	}
	if g.ResourceType != nil && *g.ResourceType != res.Type {
		return false
	}
	if g.ResourceID != nil && *g.ResourceID != res.ID {
		return false
	}
	return true
}

// Specificity orders matching grants: resource-instance scope beats
// resource-type scope beats a fully unscoped grant.
func (g *Grant) Specificity() int {
	switch {
	case g.ResourceType != nil && g.ResourceID != nil:
		return 2
	case g.ResourceType != nil:
		return 1
	default:
		return 0
	}
}

// Decision is the outcome of one authorization evaluation. Rule names the
// winning rule: "superuser", "role_default" or "grant:<id>".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

const (
	RuleSuperuser   = "superuser"
	RuleRoleDefault = "role_default"

	DenyNoGrant         = "no_grant"
	DenyAccountInactive = "account_inactive"
	DenyAccountLocked   = "account_locked"
)

// PolicyKey addresses one role-default policy entry.
type PolicyKey struct {
	Role         identity.Role
	ResourceType string
	Action       string
}

// PolicyTable holds role-default decisions. A missing key falls through to
// the fine-grained grant scan.
type PolicyTable map[PolicyKey]bool

// DefaultPolicyTable is the built-in role policy. Explicit entries replace
// the decorator metadata the permission checks used to be scattered across.
func DefaultPolicyTable() PolicyTable {
	allow := func(t PolicyTable, role identity.Role, resourceType string, actions ...string) {
		for _, a := range actions {
			t[PolicyKey{role, resourceType, a}] = true
		}
	}

	t := PolicyTable{}

	allow(t, identity.RoleUser, ResourceDocument, ActionRead, ActionCreate, ActionSubmit, ActionDelete)
	allow(t, identity.RoleUser, ResourceApprovalChain, ActionRead, ActionDecide, ActionCancel)
	allow(t, identity.RoleUser, ResourceAuditFinding, ActionRead, ActionSubmit)

	allow(t, identity.RoleLeader, ResourceDocument, ActionRead, ActionCreate, ActionSubmit, ActionArchive, ActionObsolete)
	allow(t, identity.RoleLeader, ResourceApprovalChain, ActionRead, ActionDecide, ActionCancel)
	allow(t, identity.RoleLeader, ResourceAuditPlan, ActionRead, ActionCreate, ActionSubmit)
	allow(t, identity.RoleLeader, ResourceAuditFinding, ActionRead, ActionCreate, ActionSubmit, ActionVerify, ActionReject)

	return t
}

var (
	ErrGrantNotFound       = internal.ErrGrantNotFound
	ErrGrantAlreadyRevoked = internal.ErrGrantAlreadyRevoked
)
