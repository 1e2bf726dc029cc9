package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const contextKeyRequestLog contextKey = "request_log"

// requestLog recebe tenant e usuário definidos pelos middlewares internos.
type requestLog struct {
	tenant  string
	subject string
}

func recordTenant(ctx context.Context, tenantID string) {
	if rl, ok := ctx.Value(contextKeyRequestLog).(*requestLog); ok {
		rl.tenant = tenantID
	}
}

func recordSubject(ctx context.Context, subject string) {
	if rl, ok := ctx.Value(contextKeyRequestLog).(*requestLog); ok {
		rl.subject = subject
	}
}

// Logging escreve um log estruturado por requisição.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		rl := &requestLog{}
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyRequestLog, rl)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		level := zerolog.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status == http.StatusTooManyRequests:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", realIPFromRequest(r))

		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			event = event.Str("request_id", reqID)
		}
		if rl.tenant != "" {
			event = event.Str("tenant_id", rl.tenant)
		}
		if rl.subject != "" {
			event = event.Str("user_id", rl.subject)
		}
		if ua := r.Header.Get("User-Agent"); ua != "" {
			event = event.Str("user_agent", ua)
		}

		event.Msg("http_request")
	})
}
