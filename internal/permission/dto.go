package permission

import (
	"errors"
	"time"
)

// GrantPermissionDTO is the request payload for a single grant.
type GrantPermissionDTO struct {
	UserID       int64      `json:"user_id" validate:"required"`
	PermissionID string     `json:"permission_id" validate:"required"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	Reason       string     `json:"reason" validate:"required"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (dto GrantPermissionDTO) Validate() error {
	if dto.UserID == 0 {
		return errors.New("user_id is required")
	}
	if dto.PermissionID == "" {
		return errors.New("permission_id is required")
	}
	if dto.Reason == "" {
		return errors.New("reason is required")
	}
	if dto.ResourceID != nil && dto.ResourceType == nil {
		return errors.New("resource_type is required when resource_id is set")
	}
	if dto.ExpiresAt != nil && !dto.ExpiresAt.After(time.Now()) {
		return errors.New("expires_at must be in the future")
	}
	return nil
}

// BatchGrantDTO grants one permission to many users, or many permissions to
// one user. Pairs are processed independently.
type BatchGrantDTO struct {
	UserIDs       []int64    `json:"user_ids" validate:"required,min=1"`
	PermissionIDs []string   `json:"permission_ids" validate:"required,min=1"`
	ResourceType  *string    `json:"resource_type,omitempty"`
	ResourceID    *string    `json:"resource_id,omitempty"`
	Reason        string     `json:"reason" validate:"required"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (dto BatchGrantDTO) Validate() error {
	if len(dto.UserIDs) == 0 {
		return errors.New("at least one user_id is required")
	}
	if len(dto.PermissionIDs) == 0 {
		return errors.New("at least one permission_id is required")
	}
	if dto.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

// BatchGrantResult reports one (user, permission) pair outcome. A failed
// pair never rolls back the others.
type BatchGrantResult struct {
	UserID       int64  `json:"user_id"`
	PermissionID string `json:"permission_id"`
	GrantID      string `json:"grant_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RevokeGrantDTO is the request payload for revoking a grant.
type RevokeGrantDTO struct {
	GrantID string `json:"grant_id" validate:"required"`
}

func (dto RevokeGrantDTO) Validate() error {
	if dto.GrantID == "" {
		return errors.New("grant_id is required")
	}
	return nil
}
