package syncer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/facturio/facturio/internal/platform/httpx"
	"github.com/facturio/facturio/internal/tenant"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/run", h.TriggerRun)
		r.Get("/items", h.ListItems)
		r.Post("/items/{id}/retry", h.RetryItem)
		r.Get("/runs", h.ListRuns)
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "sync item not found or not retryable")
	case errors.Is(err, ErrRunInProgress):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("sync handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	run, err := h.service.Run(r.Context(), scope, TriggerManual)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}

	var statuses []Status
	switch r.URL.Query().Get("status") {
	case "":
	case "pending":
		statuses = []Status{StatusPending}
	case "error":
		statuses = []Status{StatusError}
	case "in_progress":
		statuses = []Status{StatusInProgress}
	case "success":
		statuses = []Status{StatusSuccess}
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status filter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.service.ListItems(r.Context(), scope, statuses, limit)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) RetryItem(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}

	item, err := h.service.RetryItem(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), scope, limit)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}
