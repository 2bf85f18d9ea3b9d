package export

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facturio/facturio/internal/accounting"
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
	r.Get("/exports", h.Generate)
}

// Generate streams the rendered export file for ?from=YYYY-MM-DD&to=YYYY-MM-DD
// with an optional ?format=fec|generic override.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to precedes from")
		return
	}

	format := accounting.ExportFormat(q.Get("format"))
	switch format {
	case "", accounting.FormatFiscal, accounting.FormatGeneric:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "format must be fec or generic")
		return
	}

	var buf bytes.Buffer
	count, err := h.service.Generate(r.Context(), scope, &buf, GenerateRequest{From: from, To: to, Format: format})
	if err != nil {
		switch {
		case errors.Is(err, accounting.ErrNotConfigured),
			errors.Is(err, accounting.ErrIncompleteConfiguration):
			httpx.Problem(w, http.StatusConflict, "Incomplete Configuration", err.Error())
		default:
			h.logger.Error("export generation failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	h.logger.Info("export generated",
		slog.Int64("tenant_id", scope.TenantID()),
		slog.Int("journal_lines", count))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(
		`attachment; filename="journal_%s_%s.txt"`,
		from.Format("20060102"), to.Format("20060102")))
	_, _ = w.Write(buf.Bytes())
}
