package accounting

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/facturio/facturio/internal/platform/httpx"
	"github.com/facturio/facturio/internal/tenant"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting/config", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Put("/", h.Activate)
		r.Get("/missing-roles", h.MissingRoles)
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	cfg, err := h.service.GetActive(r.Context(), scope)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no active accounting configuration")
			return
		}
		h.logger.Error("get accounting config failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	var req UpsertConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	cfg, err := h.service.Activate(r.Context(), scope, req)
	if err != nil {
		h.logger.Error("activate accounting config failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) MissingRoles(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	missing, err := h.service.MissingRoles(r.Context(), scope)
	if err != nil {
		h.logger.Error("missing roles lookup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"missing_roles": missing})
}
