package category

import (
	"errors"
	"log/slog"
	"strings"

	categoryDatamodel "github.com/ardiwinata/qms-compliance/internal/core/datamodel/category"
)

var (
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryNotFound = errors.New("category not found")
	ErrEmptyName        = errors.New("category name is required")
)

type RepositoryAPI interface {
	GetAll() ([]*categoryDatamodel.DocumentCategory, error)
	GetByID(id int64) (*categoryDatamodel.DocumentCategory, error)
	GetByName(name string) (*categoryDatamodel.DocumentCategory, error)
	Create(category *categoryDatamodel.DocumentCategory) error
	Update(category *categoryDatamodel.DocumentCategory) error
	Delete(id int64) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetAllCategories lists the active vocabulary entries only; deactivated
// categories stay on existing documents but are hidden from pickers.
func (s *Service) GetAllCategories() ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	var responses []CategoryResponse
	for _, dataCategory := range dataCategories {
		domainCategory := FromDataModel(dataCategory)
		if domainCategory.IsActiveCategory() {
			responses = append(responses, domainCategory.ToResponse())
		}
	}

	return responses, nil
}

func (s *Service) GetCategoryByName(name string) (*CategoryResponse, error) {
	dataCategory, err := s.repo.GetByName(name)
	if err != nil {
		s.logger.Error("failed to get category from repository", "name", name, "error", err)
		return nil, err
	}
	if dataCategory == nil {
		return nil, nil
	}

	domainCategory := FromDataModel(dataCategory)
	if !domainCategory.IsActiveCategory() {
		return nil, nil
	}

	response := domainCategory.ToResponse()
	return &response, nil
}

func (s *Service) IsValidCategory(name string) bool {
	category, err := s.GetCategoryByName(name)
	if err != nil {
		s.logger.Warn("error checking category validity", "name", name, "error", err)
		return false
	}
	return category != nil
}

func (s *Service) Create(name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	existing, err := s.repo.GetByName(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrCategoryExists
	}

	domainCategory := NewCategory(name, description)
	dataCategory := ToDataModel(domainCategory)
	if err := s.repo.Create(dataCategory); err != nil {
		s.logger.Error("failed to create category", "name", name, "error", err)
		return nil, err
	}

	domainCategory.ID = dataCategory.ID
	return domainCategory, nil
}

// Deactivate hides a category from the vocabulary without touching
// documents that already carry it.
func (s *Service) Deactivate(id int64) (*Category, error) {
	dataCategory, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if dataCategory == nil {
		return nil, ErrCategoryNotFound
	}

	domainCategory := FromDataModel(dataCategory)
	domainCategory.Deactivate()

	if err := s.repo.Update(ToDataModel(domainCategory)); err != nil {
		s.logger.Error("failed to deactivate category", "id", id, "error", err)
		return nil, err
	}

	return domainCategory, nil
}
