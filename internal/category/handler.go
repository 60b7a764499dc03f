package category

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/transport"
)

type ServiceAPI interface {
	GetAllCategories() ([]CategoryResponse, error)
	IsValidCategory(name string) bool
	Create(name, description string) (*Category, error)
	Deactivate(id int64) (*Category, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.GetAllCategories()
	if err != nil {
		h.Logger.Error("GetCategories: failed to get categories", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to get categories")
		return
	}

	h.WriteJSON(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
	})
}

// CreateCategory adds a vocabulary entry. Restricted to administrators;
// the vocabulary changes rarely and deliberately.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "only administrators manage categories")
		return
	}

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Service.Create(req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyName):
			h.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrCategoryExists):
			h.WriteError(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("CreateCategory: failed", "error", err)
			h.WriteError(w, http.StatusInternalServerError, "failed to create category")
		}
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) DeactivateCategory(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "only administrators manage categories")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	updated, err := h.Service.Deactivate(id)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			h.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.Logger.Error("DeactivateCategory: failed", "id", id, "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to deactivate category")
		return
	}

	h.WriteJSON(w, http.StatusOK, updated)
}
