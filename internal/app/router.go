package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/clients"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/export"
	"github.com/facturio/facturio/internal/syncer"
	"github.com/facturio/facturio/internal/tenant"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	TenantRepo        tenant.Repository
	ClientsHandler    *clients.Handler
	DocumentsHandler  *documents.Handler
	AccountingHandler *accounting.Handler
	ExportHandler     *export.Handler
	SyncHandler       *syncer.Handler
}

// NewRouter constructs the chi.Router. Everything except the health check
// sits behind the tenant API key middleware.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(params.Logger, params.TenantRepo))

		if params.ClientsHandler != nil {
			params.ClientsHandler.MountRoutes(r)
		}
		if params.DocumentsHandler != nil {
			params.DocumentsHandler.MountRoutes(r)
		}
		if params.AccountingHandler != nil {
			params.AccountingHandler.MountRoutes(r)
		}
		if params.ExportHandler != nil {
			params.ExportHandler.MountRoutes(r)
		}
		if params.SyncHandler != nil {
			params.SyncHandler.MountRoutes(r)
		}
	})

	return r
}
