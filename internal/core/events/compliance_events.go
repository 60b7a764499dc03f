package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeApprovalStepAssigned  = "approval.step_assigned"
	EventTypeApprovalApproved      = "approval.approved"
	EventTypeApprovalRejected      = "approval.rejected"
	EventTypeFindingAssigned       = "audit.finding_assigned"
	EventTypeRectificationVerified = "audit.rectification_verified"
	EventTypeRectificationRejected = "audit.rectification_rejected"
	EventTypeNotificationRequested = "notification.requested"
)

// NotificationRequestedEvent asks the notification worker to deliver one
// message to one principal. The original event kind rides along in Kind.
type NotificationRequestedEvent struct {
	BaseEvent
	PrincipalID int64          `json:"principal_id"`
	Kind        string         `json:"kind"`
	Detail      map[string]any `json:"detail"`
}

func NewNotificationRequestedEvent(principalID int64, kind string, detail map[string]any) *NotificationRequestedEvent {
	return &NotificationRequestedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNotificationRequested,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"principal_id": principalID,
				"kind":         kind,
				"detail":       detail,
			},
		},
		PrincipalID: principalID,
		Kind:        kind,
		Detail:      detail,
	}
}
