package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gestaozabele/gestao-escolar/internal/auth"
	"github.com/gestaozabele/gestao-escolar/internal/config"
	httpmiddleware "github.com/gestaozabele/gestao-escolar/internal/http/middleware"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

// SEDClient é o subconjunto do cliente SED usado pelas rotas.
type SEDClient interface {
	ListarEscolas(ctx context.Context, scope sed.Scope, p sed.EscolasParams) (json.RawMessage, error)
	ListarDiretorias(ctx context.Context, scope sed.Scope) (json.RawMessage, error)
	ListarClasses(ctx context.Context, scope sed.Scope, p sed.ClassesParams) (json.RawMessage, error)
	ConsultarClasse(ctx context.Context, scope sed.Scope, p sed.ClasseParams) (json.RawMessage, error)
	ConsultarAluno(ctx context.Context, scope sed.Scope, p sed.AlunoParams) (json.RawMessage, error)
	ListarTiposEnsino(ctx context.Context, scope sed.Scope) (json.RawMessage, error)
	VerifyCredentials(ctx context.Context, cs sed.CredentialSet) error
	ClearAllCaches(ctx context.Context) error
	ClearUserCaches(ctx context.Context, userID string) (int, error)
	ClearTenantCaches(ctx context.Context, tenantID string) (int, error)
}

// TenantService cobre resolução e cadastro de municípios.
type TenantService interface {
	Resolve(ctx context.Context, host string) (*tenant.Tenant, error)
	List(ctx context.Context) ([]tenant.Tenant, error)
	Create(ctx context.Context, input tenant.CreateTenantInput) (*tenant.Tenant, error)
	Get(ctx context.Context, tenantID string) (*tenant.Tenant, error)
	SaveValidatedSEDCredentials(ctx context.Context, input tenant.SaveSEDCredentialsInput) (*tenant.SEDCredentials, error)
}

// HealthCheck verifica uma dependência externa.
type HealthCheck func(ctx context.Context) error

// Deps agrupa as dependências do roteador.
type Deps struct {
	SED     SEDClient
	Tenants TenantService
	JWT     *auth.JWTManager
	Checks  map[string]HealthCheck
}

type Handler struct {
	cfg           *config.Config
	sed           SEDClient
	tenants       TenantService
	jwt           *auth.JWTManager
	checks        map[string]HealthCheck
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	tenantLimiter *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	h := &Handler{
		cfg:           cfg,
		sed:           deps.SED,
		tenants:       deps.Tenants,
		jwt:           deps.JWT,
		checks:        deps.Checks,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		tenantLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond*5, cfg.RateLimitAuth.Burst*5),
		devCookies:    devCookies,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(scoped chi.Router) {
		scoped.Use(httpmiddleware.TenantScope(h.tenants, cfg.SED.HasDefaultCredentials()))

		scoped.Group(func(public chi.Router) {
			public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

			public.Get("/tenant", h.TenantConfig)
		})

		scoped.Group(func(private chi.Router) {
			private.Use(httpmiddleware.Auth(h.jwt))
			private.Use(httpmiddleware.IdentityChange(h.sed, !h.devCookies))
			private.Use(httpmiddleware.UserRateLimit(h.authLimiter))
			private.Use(httpmiddleware.TenantRateLimit(h.tenantLimiter))

			h.registerSEDRoutes(private)
			h.registerEnsinoRoutes(private)
			private.Post("/auth/logout", h.Logout)
		})
	})

	r.Route("/saas", func(saasRouter chi.Router) {
		saasRouter.Use(httpmiddleware.Auth(h.jwt))
		saasRouter.Use(httpmiddleware.RequireSaaSAdmin)
		saasRouter.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		saasRouter.Get("/tenants", h.ListTenants)
		saasRouter.Post("/tenants", h.CreateTenant)
		saasRouter.Put("/tenants/{tenantID}/sed", h.UpdateTenantSED)
		saasRouter.Post("/tenants/{tenantID}/sed/cache/limpar", h.ClearTenantCache)
	})

	return r
}

// Health é usado por probes de liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida as dependências registradas (Postgres, Redis).
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]any{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		WriteError(w, http.StatusServiceUnavailable, sed.KindNetwork, "dependências indisponíveis", failures)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
