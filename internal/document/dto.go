package document

import (
	"errors"
	"strings"
)

// CreateDocumentDTO is the request payload for a new draft document.
type CreateDocumentDTO struct {
	Number   string  `json:"number" validate:"required"`
	Title    string  `json:"title" validate:"required"`
	Category string  `json:"category" validate:"required"`
	FilePath *string `json:"file_path,omitempty"`
}

func (dto CreateDocumentDTO) Validate() error {
	if strings.TrimSpace(dto.Number) == "" {
		return errors.New("number is required")
	}
	if strings.TrimSpace(dto.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(dto.Category) == "" {
		return errors.New("category is required")
	}
	return nil
}

// SubmitForApprovalDTO names the ordered approvers for a draft.
type SubmitForApprovalDTO struct {
	DocumentID  string  `json:"document_id" validate:"required"`
	ApproverIDs []int64 `json:"approver_ids" validate:"required,min=1"`
}

func (dto SubmitForApprovalDTO) Validate() error {
	if dto.DocumentID == "" {
		return errors.New("document_id is required")
	}
	if len(dto.ApproverIDs) == 0 {
		return errors.New("at least one approver is required")
	}
	return nil
}
