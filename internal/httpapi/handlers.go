package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/inventory"
	"sparehub.org/internal/obs"
)

const (
	serviceName     = "sparehub-api"
	maxRequestBytes = 1 << 20
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks readiness; a nil Pinger is always ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Auth      *auth.Service
	RBAC      *auth.RBACService
	Tokens    *auth.TokenService
	Inventory inventory.Service
	Ready     ReadyProbe
	// Policy defaults to DefaultPolicy.
	Policy auth.Policy
}

// Options tune the HTTP layer.
type Options struct {
	Version     string
	Development bool
	CORSOrigins []string
}

// API is the HTTP layer.
type API struct {
	auth      *auth.Service
	rbac      *auth.RBACService
	tokens    *auth.TokenService
	inventory inventory.Service
	ready     ReadyProbe
	policy    auth.Policy
	opts      Options
	router    chi.Router
}

func New(deps Deps, opts Options) (*API, error) {
	if deps.Auth == nil || deps.RBAC == nil || deps.Tokens == nil || deps.Inventory == nil {
		return nil, errors.New("httpapi: auth, rbac, tokens and inventory are required")
	}
	policy := deps.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	a := &API{
		auth:      deps.Auth,
		rbac:      deps.RBAC,
		tokens:    deps.Tokens,
		inventory: deps.Inventory,
		ready:     deps.Ready,
		policy:    policy,
		opts:      opts,
	}
	a.router = a.routes()
	return a, nil
}

// Handler returns the router with the middleware stack applied.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, SecurityHeaders, CORS(a.opts.CORSOrigins), Logging)
	r.Use(Recoverer(a.opts.Development), obs.Instrument)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(MaxBodyBytes(maxRequestBytes))
		a.registerAuth(r)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			a.registerRBAC(r)
			a.registerInventory(r)
			r.With(a.protect(OpAdminPing)).Get("/admin/ping", a.adminPing)
		})
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.Logger().WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

func (a *API) adminPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "pong"})
}
