package approval

import (
	"errors"
	"fmt"
	"strings"
)

// SubmitChainDTO creates an approval chain for a submitted record.
type SubmitChainDTO struct {
	RecordID    string  `json:"record_id" validate:"required"`
	RecordType  string  `json:"record_type" validate:"required"`
	ApproverIDs []int64 `json:"approver_ids" validate:"required,min=1"`
}

func (dto SubmitChainDTO) Validate() error {
	if dto.RecordID == "" {
		return errors.New("record_id is required")
	}
	if dto.RecordType == "" {
		return errors.New("record_type is required")
	}
	if len(dto.ApproverIDs) == 0 {
		return errors.New("at least one approver is required")
	}
	seen := map[int64]bool{}
	for _, id := range dto.ApproverIDs {
		if id == 0 {
			return errors.New("approver id cannot be zero")
		}
		if seen[id] {
			return fmt.Errorf("approver %d appears more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// DecideDTO records one approver's decision on the current step.
type DecideDTO struct {
	Action          StepDecision `json:"action" validate:"required,oneof=approved rejected"`
	Comment         *string      `json:"comment,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
}

func (dto DecideDTO) Validate() error {
	switch dto.Action {
	case StepApproved:
		return nil
	case StepRejected:
		if dto.RejectionReason == nil || len(strings.TrimSpace(*dto.RejectionReason)) < MinRejectionReasonLen {
			return fmt.Errorf("rejection reason of at least %d characters is required", MinRejectionReasonLen)
		}
		return nil
	default:
		return errors.New("action must be either 'approved' or 'rejected'")
	}
}
