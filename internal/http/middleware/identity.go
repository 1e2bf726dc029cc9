package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// IdentityCookie guarda o último usuário autenticado neste navegador.
const IdentityCookie = "sed_ident"

// UserCacheClearer remove os dados SED em cache de um usuário.
type UserCacheClearer interface {
	ClearUserCaches(ctx context.Context, userID string) (int, error)
}

// IdentityChange limpa o cache SED do usuário anterior quando outro usuário
// passa a usar o mesmo navegador. Deve rodar depois de Auth.
func IdentityChange(clearer UserCacheClearer, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetSubject(r.Context())
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			previous := ""
			if c, err := r.Cookie(IdentityCookie); err == nil {
				previous = c.Value
			}

			if previous != subject {
				if previous != "" {
					removed, err := clearer.ClearUserCaches(r.Context(), previous)
					if err != nil {
						log.Warn().Err(err).Str("anterior", previous).Msg("falha ao limpar cache do usuário anterior")
					} else {
						log.Info().Str("anterior", previous).Str("atual", subject).Int("removidas", removed).Msg("troca de usuário detectada")
					}
				}
				http.SetCookie(w, &http.Cookie{
					Name:     IdentityCookie,
					Value:    subject,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r)
		})
	}
}
