package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestaozabele/gestao-escolar/internal/auth"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

const testSecret = "segredo-de-teste-com-mais-de-32-caracteres"

type stubLookup struct {
	tenants map[string]*tenant.Tenant
	err     error
}

func (s stubLookup) Resolve(_ context.Context, host string) (*tenant.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	if t, ok := s.tenants[host]; ok {
		return t, nil
	}
	return nil, tenant.ErrNotFound
}

type stubClearer struct {
	cleared []string
}

func (s *stubClearer) ClearUserCaches(_ context.Context, userID string) (int, error) {
	s.cleared = append(s.cleared, userID)
	return 2, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rr.Body.String(), err)
	}
	return body.Error
}

func TestTenantScope(t *testing.T) {
	active := &tenant.Tenant{ID: uuid.New(), Domain: "itapeva.gestao.local", Status: "active"}
	inactive := &tenant.Tenant{ID: uuid.New(), Domain: "parado.gestao.local", Status: "suspended"}
	lookup := stubLookup{tenants: map[string]*tenant.Tenant{
		active.Domain:   active,
		inactive.Domain: inactive,
	}}

	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTenant(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name         string
		host         string
		allowDefault bool
		wantStatus   int
		wantTenant   string
	}{
		{"tenant ativo", active.Domain, false, http.StatusOK, active.ID.String()},
		{"tenant inativo", inactive.Domain, true, http.StatusForbidden, ""},
		{"host desconhecido sem padrão", "outro.local", false, http.StatusNotFound, ""},
		{"host desconhecido com padrão", "outro.local", true, http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/sed/escolas", nil)
			req.Host = tc.host
			rr := httptest.NewRecorder()

			TenantScope(lookup, tc.allowDefault)(capture).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d got %d", tc.wantStatus, rr.Code)
			}
			if seen != tc.wantTenant {
				t.Fatalf("expected tenant %q got %q", tc.wantTenant, seen)
			}
		})
	}
}

func TestTenantScopeStoreFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	TenantScope(stubLookup{err: errors.New("db fora")}, true)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["type"]; got != "UnexpectedError" {
		t.Fatalf("unexpected type %v", got)
	}
}

func TestAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager(testSecret, time.Minute)
	token, _, err := jwtManager.GenerateAccessToken("user-1", "escola", "", []string{"PROFESSOR"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	bound, _, err := jwtManager.GenerateAccessToken("user-2", "escola", "tenant-a", nil)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	var subject string
	var roles []string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = GetSubject(r.Context())
		roles = GetRoles(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		tenant     string
		wantStatus int
	}{
		{"sem token", "", "", http.StatusUnauthorized},
		{"token inválido", "Bearer abc", "", http.StatusUnauthorized},
		{"token válido", "Bearer " + token, "tenant-a", http.StatusOK},
		{"tenant divergente", "Bearer " + bound, "tenant-b", http.StatusForbidden},
		{"tenant correto", "Bearer " + bound, "tenant-a", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.tenant != "" {
				req = req.WithContext(SetTenant(req.Context(), tc.tenant))
			}
			rr := httptest.NewRecorder()

			Auth(jwtManager)(capture).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}

	if subject != "user-2" || len(roles) != 0 {
		t.Fatalf("unexpected claims in context: %q %v", subject, roles)
	}
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles("admin")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/sed/cache/limpar", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(context.WithValue(req.Context(), ContextKeyRoles, []string{"professor"})))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["status_code"]; got != float64(http.StatusForbidden) {
		t.Fatalf("unexpected status_code %v", got)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(context.WithValue(req.Context(), ContextKeyRoles, []string{" Admin "})))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestRequireSaaSAdminChecksAudience(t *testing.T) {
	handler := RequireSaaSAdmin(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/saas/tenants", nil)
	ctx := context.WithValue(req.Context(), ContextKeyRoles, []string{"SAAS_ADMIN"})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(context.WithValue(ctx, ContextKeyAudience, "escola")))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(context.WithValue(ctx, ContextKeyAudience, "saas")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestIdentityChange(t *testing.T) {
	clearer := &stubClearer{}
	handler := IdentityChange(clearer, false)(http.HandlerFunc(okHandler))

	request := func(subject string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/sed/classes", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		req = req.WithContext(context.WithValue(req.Context(), ContextKeySubject, subject))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := request("ana", nil)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "ana" {
		t.Fatalf("expected identity cookie, got %v", cookies)
	}
	if len(clearer.cleared) != 0 {
		t.Fatalf("first visit must not clear caches: %v", clearer.cleared)
	}

	rr = request("ana", cookies[0])
	if len(rr.Result().Cookies()) != 0 || len(clearer.cleared) != 0 {
		t.Fatal("same user must keep caches and cookie")
	}

	rr = request("bruno", cookies[0])
	if len(clearer.cleared) != 1 || clearer.cleared[0] != "ana" {
		t.Fatalf("expected previous user caches cleared, got %v", clearer.cleared)
	}
	if c := rr.Result().Cookies(); len(c) != 1 || c[0].Value != "bruno" {
		t.Fatalf("expected cookie for new user, got %v", c)
	}
}

func TestRateLimitResponds429(t *testing.T) {
	limiter := NewRateLimiter(0.0001, 1)
	handler := IPRateLimit(limiter)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first call allowed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["type"]; got != "RateLimitExceeded" {
		t.Fatalf("unexpected type %v", got)
	}
}

func TestTenantRateLimitSeparatesTenants(t *testing.T) {
	handler := TenantRateLimit(NewRateLimiter(0.0001, 1))(http.HandlerFunc(okHandler))

	call := func(tenantID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(SetTenant(req.Context(), tenantID))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if call("a") != http.StatusOK || call("b") != http.StatusOK {
		t.Fatal("each tenant must have its own quota")
	}
	if call("a") != http.StatusTooManyRequests {
		t.Fatal("expected tenant a throttled")
	}
}

func TestRecover(t *testing.T) {
	handler := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["message"]; got != "erro interno" {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://painel.gestao.local", "*.educacao.sp.gov.br"})(http.HandlerFunc(okHandler))

	tests := []struct {
		origin string
		allow  bool
	}{
		{"https://painel.gestao.local", true},
		{"https://itapeva.educacao.sp.gov.br", true},
		{"https://educacao.sp.gov.br", false},
		{"https://evil.local", false},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tc.origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		got := rr.Header().Get("Access-Control-Allow-Origin") == tc.origin
		if got != tc.allow {
			t.Fatalf("origin %s: expected allow=%v", tc.origin, tc.allow)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/sed/escolas", nil)
	req.Header.Set("Origin", "https://painel.gestao.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204 got %d", rr.Code)
	}
}

func TestLoggingSeesTenantFromInnerMiddleware(t *testing.T) {
	var rl *requestLog
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl, _ = r.Context().Value(contextKeyRequestLog).(*requestLog)
		SetTenant(r.Context(), "tenant-a")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Logging(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status must pass through, got %d", rr.Code)
	}
	if rl == nil || rl.tenant != "tenant-a" {
		t.Fatalf("expected tenant recorded for the request log, got %+v", rl)
	}
}
