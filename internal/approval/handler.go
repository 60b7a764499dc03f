package approval

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/transport"
	"github.com/ardiwinata/qms-compliance/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) SubmitChain(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto SubmitChainDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("SubmitChain: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chain, err := h.Service.Submit(r.Context(), principal.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("SubmitChain: chain created", "chain_id", chain.ID, "user_id", principal.ID)
	h.WriteJSON(w, http.StatusCreated, chain)
}

func (h *Handler) GetChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.Service.GetChain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, chain)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	chains, err := h.Service.ListPendingForApprover(r.Context(), principal.ID, 50, 0)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, chains)
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto DecideDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chain, err := h.Service.Decide(r.Context(), principal.ID, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Decide: decision applied",
		"chain_id", chain.ID,
		"user_id", principal.ID,
		"status", chain.Status)
	h.WriteJSON(w, http.StatusOK, chain)
}

func (h *Handler) CancelChain(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	chain, err := h.Service.Cancel(r.Context(), principal.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, chain)
}
