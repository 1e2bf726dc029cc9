package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

// TenantLookup resolve o município pelo host da requisição.
type TenantLookup interface {
	Resolve(ctx context.Context, host string) (*tenant.Tenant, error)
}

// TenantScope injeta o tenant do host no contexto. Com allowDefault, hosts
// desconhecidos seguem sem tenant e usam as credenciais SED padrão.
func TenantScope(lookup TenantLookup, allowDefault bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := lookup.Resolve(r.Context(), r.Host)
			switch {
			case err == nil:
				if t.Status != "" && t.Status != "active" {
					writeError(w, http.StatusForbidden, "Forbidden", "município inativo")
					return
				}
				next.ServeHTTP(w, r.WithContext(SetTenant(r.Context(), t.ID.String())))
			case errors.Is(err, tenant.ErrNotFound) && allowDefault:
				next.ServeHTTP(w, r)
			case errors.Is(err, tenant.ErrNotFound):
				writeError(w, http.StatusNotFound, "ConfigurationError", "município não encontrado")
			default:
				log.Error().Err(err).Str("host", r.Host).Msg("falha ao resolver tenant")
				writeError(w, http.StatusInternalServerError, "UnexpectedError", "erro interno")
			}
		})
	}
}

// SetTenant injeta o tenant ativo no contexto.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	recordTenant(ctx, tenantID)
	return context.WithValue(ctx, ContextKeyTenant, tenantID)
}

// GetTenant retorna o tenant ativo do contexto.
func GetTenant(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyTenant).(string)
	return val
}
