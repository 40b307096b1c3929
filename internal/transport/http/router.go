// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services and encode; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"namereg/pkg/platform/middleware/admin"
	"namereg/pkg/platform/middleware/auth"
	"namereg/pkg/platform/middleware/gasprice"
	request "namereg/pkg/platform/middleware/request"
	"namereg/pkg/platform/middleware/requesttime"
)

// RouterConfig carries everything the router needs; handlers are constructed
// by the caller so tests can wire fakes.
type RouterConfig struct {
	Logger     *slog.Logger
	Validator  auth.TokenValidator
	AdminToken string

	Names   *NamesHandler
	Commits *CommitsHandler
	Admin   *AdminHandler

	// Health reports readiness of backing stores; nil checks always pass.
	Health func() error
}

// NewRouter wires middleware and all endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(gasprice.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Public lookups.
		r.Get("/names/{name}", cfg.Names.HandleGetName)
		r.Get("/names/{name}/available", cfg.Names.HandleAvailable)
		r.Get("/tokens/{tokenID}/uri", cfg.Names.HandleTokenURI)
		r.Get("/owners/{address}/tokens", cfg.Names.HandleListTokens)

		// Caller-bound operations.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))

			r.Get("/commits/hash", cfg.Commits.HandleHash)
			r.Post("/commits", cfg.Commits.HandleCommit)
			r.Post("/reveals", cfg.Commits.HandleReveal)
			r.Post("/names", cfg.Names.HandleRegister)
			r.Post("/tokens/{tokenID}/transfer", cfg.Names.HandleTransfer)
			r.Post("/tokens/{tokenID}/reclaim", cfg.Names.HandleReclaim)
			r.Post("/tokens/{tokenID}/approve", cfg.Names.HandleApprove)
			r.Post("/operators", cfg.Names.HandleSetOperator)
		})

		// Operator API.
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, cfg.Logger))

			r.Post("/controllers", cfg.Admin.HandleAddController)
			r.Delete("/controllers/{address}", cfg.Admin.HandleRemoveController)
			r.Post("/migrations", cfg.Admin.HandleMigrate)
			r.Post("/migrations/finish", cfg.Admin.HandleFinishMigration)
			r.Post("/domain/reclaim", cfg.Admin.HandleReclaimDomain)
			r.Post("/domain/transfer", cfg.Admin.HandleTransferDomain)
			r.Put("/base-uri", cfg.Admin.HandleUpdateBaseURI)
			r.Put("/registry", cfg.Admin.HandleUpdateRegistry)
			r.Put("/base", cfg.Admin.HandleUpdateBase)
			r.Put("/resolver", cfg.Admin.HandleSetResolver)
			r.Put("/max-gas-price", cfg.Admin.HandleUpdateMaxGasPrice)
			r.Put("/fee-collector", cfg.Admin.HandleSetFeeCollector)
		})
	})

	return r
}
