// Package sed implementa o acesso à API da Secretaria Escolar Digital: resolução
// de credenciais por tenant, ciclo de vida do token, política de novas tentativas
// e cache das respostas.
package sed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gestaozabele/gestao-escolar/internal/cache"
	"github.com/gestaozabele/gestao-escolar/internal/config"
	"github.com/gestaozabele/gestao-escolar/internal/util"
)

const (
	authPath        = "Usuario/ValidarUsuario"
	maxResponseSize = 16 << 20
	maxBodyLogged   = 2048
)

// Config descreve o comportamento do Client.
type Config struct {
	BaseURL              string
	RequestTimeout       time.Duration
	TokenBuffer          time.Duration
	TokenDefaultLifetime time.Duration
	Retry                RetryPolicy
	DefaultTTL           time.Duration
	ResourceTTL          map[string]time.Duration
	BusinessErrorFields  []string
	LogRequests          bool
	LogBodies            bool
}

// ConfigFromSED converte a configuração carregada do ambiente.
func ConfigFromSED(cfg config.SEDConfig) Config {
	return Config{
		BaseURL:              cfg.BaseURL,
		RequestTimeout:       cfg.RequestTimeout,
		TokenBuffer:          cfg.TokenExpirationBuffer,
		TokenDefaultLifetime: cfg.TokenDefaultLifetime,
		Retry: RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Delay:       cfg.RetryDelay,
			StatusCodes: cfg.RetryStatusCodes,
		},
		DefaultTTL:          cfg.CacheTTL,
		BusinessErrorFields: cfg.BusinessErrorFields,
		LogRequests:         cfg.LogRequests || cfg.Debug,
		LogBodies:           cfg.LogBodies,
	}
}

// Scope identifica tenant e usuário da requisição; ambos podem ser vazios.
type Scope struct {
	TenantID string
	UserID   string
}

// Params são os parâmetros de consulta enviados à SED (inXxx).
type Params map[string]string

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// normalized devolve os parâmetros não vazios ordenados por nome.
func (p Params) normalized() string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.TrimSpace(p[k])))
	}
	return b.String()
}

func (p Params) values() url.Values {
	q := url.Values{}
	for k, v := range p {
		q.Set(k, v)
	}
	return q
}

// Resource descreve um endpoint de consulta da SED.
type Resource struct {
	Name string
	Path string
	TTL  time.Duration
	// UserScoped grava o cache no namespace do usuário.
	UserScoped bool
	// Fill completa parâmetros ausentes com os códigos das credenciais.
	Fill     func(cs CredentialSet, p Params)
	Required []string
}

// Option ajusta o Client.
type Option func(*Client)

// WithLogger define o logger do Client.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics define o receptor de métricas.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClassifier troca a regra de recusa de negócio.
func WithClassifier(bc BusinessClassifier) Option {
	return func(c *Client) {
		if bc != nil {
			c.classifier = bc
		}
	}
}

// WithHTTPClient troca o cliente HTTP usado nas chamadas.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock troca o relógio do gerenciador de tokens.
func WithClock(now cache.Clock) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client orquestra credenciais, token, novas tentativas e cache para cada consulta.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	resolver   CredentialResolver
	tokens     *TokenManager
	responses  *cache.Cache
	classifier BusinessClassifier
	validator  *util.Validator
	log        zerolog.Logger
	metrics    Metrics
	now        cache.Clock
	group      singleflight.Group
}

// New cria o Client. responses e tokens devem usar prefixos distintos.
func New(cfg Config, resolver CredentialResolver, responses, tokens *cache.Cache, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, NewError(KindConfiguration, 0, "URL base da SED não configurada", nil, nil)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, NewError(KindConfiguration, 0, "URL base da SED inválida", map[string]any{"base_url": baseURL}, err)
	}
	if resolver == nil || responses == nil || tokens == nil {
		return nil, NewError(KindConfiguration, 0, "resolver e caches são obrigatórios", nil, nil)
	}
	if responses.Prefix() == tokens.Prefix() {
		return nil, NewError(KindConfiguration, 0, "cache de respostas e de tokens precisam de prefixos distintos", nil, nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = responses.DefaultTTL()
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		resolver:   resolver,
		responses:  responses,
		classifier: DefaultClassifier(cfg.BusinessErrorFields),
		validator:  util.NewValidator(),
		log:        zerolog.Nop(),
		metrics:    nopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "sed").Logger()

	c.tokens = NewTokenManager(authenticator{c: c}, tokens, TokenOptions{
		Buffer:          cfg.TokenBuffer,
		DefaultLifetime: cfg.TokenDefaultLifetime,
		Timeout:         cfg.RequestTimeout * time.Duration(cfg.Retry.MaxAttempts+1),
		Clock:           c.now,
		Logger:          c.log,
		Metrics:         c.metrics,
	})
	return c, nil
}

// Tokens expõe o gerenciador de tokens.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Authenticate garante um token válido para o tenant.
func (c *Client) Authenticate(ctx context.Context, tenantID string) (Token, error) {
	cs, err := c.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return Token{}, c.surface("autenticar", Classify(err))
	}
	tok, err := c.tokens.GetValidToken(ctx, cs)
	if err != nil {
		return Token{}, c.surface("autenticar", Classify(err))
	}
	return tok, nil
}

// VerifyCredentials autentica cs diretamente, sem usar nem gravar token em cache.
func (c *Client) VerifyCredentials(ctx context.Context, cs CredentialSet) error {
	if !cs.Complete() {
		return NewError(KindInvalidParameter, 0, "usuário e senha são obrigatórios", nil, nil)
	}
	if _, err := (authenticator{c: c}).Authenticate(ctx, cs); err != nil {
		return c.surface("validar_credenciais", Classify(err))
	}
	return nil
}

// Fetch consulta res com params, servindo do cache quando possível.
func (c *Client) Fetch(ctx context.Context, scope Scope, res Resource, params Params) (json.RawMessage, error) {
	key := c.cacheKey(scope, res, params)

	payload, ok, err := c.responses.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("recurso", res.Name).Msg("cache de respostas indisponível")
	}
	if ok {
		c.metrics.CacheHit(res.Name)
		return payload, nil
	}
	c.metrics.CacheMiss(res.Name)

	// Chamadas idênticas concorrentes compartilham a mesma ida à SED, que segue
	// até o fim mesmo que o chamador desista.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), scope, res, params, key)
	})

	select {
	case <-ctx.Done():
		return nil, Classify(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, c.surface(res.Name, Classify(r.Err))
		}
		return r.Val.(json.RawMessage), nil
	}
}

// ClearAllCaches remove todas as respostas e tokens.
func (c *Client) ClearAllCaches(ctx context.Context) error {
	_, errResp := c.responses.FlushAll(ctx)
	errTok := c.tokens.InvalidateAll(ctx)
	if err := errors.Join(errResp, errTok); err != nil {
		return c.surface("limpar_cache", NewError(KindUnexpected, 0, "falha ao limpar caches", nil, err))
	}
	c.log.Info().Msg("caches SED limpos")
	return nil
}

// ClearUserCaches remove as respostas gravadas no namespace do usuário.
func (c *Client) ClearUserCaches(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, NewError(KindInvalidParameter, 0, "usuário obrigatório", nil, nil)
	}
	removed, err := c.responses.ForgetPrefix(ctx, userPrefix(userID))
	if err != nil {
		return removed, c.surface("limpar_cache_usuario", NewError(KindUnexpected, 0, "falha ao limpar cache do usuário", map[string]any{"user_id": userID}, err))
	}
	c.log.Debug().Str("user_id", userID).Int("removidas", removed).Msg("cache do usuário limpo")
	return removed, nil
}

// ClearTenantCaches remove as respostas compartilhadas e os tokens do tenant.
// Respostas no namespace de usuários expiram pelo TTL ou por ClearUserCaches.
func (c *Client) ClearTenantCaches(ctx context.Context, tenantID string) (int, error) {
	tenantKey := Scope{TenantID: tenantID}.tenantKey()
	removed, errResp := c.responses.ForgetPrefix(ctx, tenantPrefix(tenantKey))
	errTok := c.tokens.InvalidateTenant(ctx, tenantKey)
	if err := errors.Join(errResp, errTok); err != nil {
		return removed, c.surface("limpar_cache_tenant", NewError(KindUnexpected, 0, "falha ao limpar cache do tenant", map[string]any{"tenant_id": tenantKey}, err))
	}
	return removed, nil
}

func (c *Client) load(ctx context.Context, scope Scope, res Resource, params Params, key string) (json.RawMessage, error) {
	cs, err := c.resolver.Resolve(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}

	query := params.clone()
	if res.Fill != nil {
		res.Fill(cs, query)
	}
	var missing []string
	for _, name := range res.Required {
		if query[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, NewError(KindInvalidParameter, 0, "parâmetros obrigatórios ausentes", map[string]any{"campos": missing}, nil)
	}

	payload, err := c.call(ctx, cs, res, query)
	if KindOf(err) == KindTokenExpired {
		c.log.Info().Object("credenciais", cs).Str("recurso", res.Name).Msg("token recusado pela SED, renovando")
		if _, rerr := c.tokens.ForceRefresh(ctx, cs); rerr != nil {
			return nil, rerr
		}
		payload, err = c.call(ctx, cs, res, query)
		if sedErr, ok := AsError(err); ok && sedErr.Kind == KindTokenExpired {
			return nil, NewError(KindAuthenticationFailed, 0, "token recusado pela SED após renovação", sedErr.Context, sedErr.Err)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := c.responses.Put(ctx, key, payload, c.ttlFor(res)); err != nil {
		c.log.Warn().Err(err).Str("recurso", res.Name).Msg("falha ao gravar resposta em cache")
	}
	return payload, nil
}

func (c *Client) call(ctx context.Context, cs CredentialSet, res Resource, query Params) (json.RawMessage, error) {
	tok, err := c.tokens.GetValidToken(ctx, cs)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/" + res.Path
	if len(query) > 0 {
		endpoint += "?" + query.values().Encode()
	}

	payload, err := Execute(ctx, c.policyFor(res.Name), func(ctx context.Context) (json.RawMessage, error) {
		return c.send(ctx, res.Name, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+tok.Value)
		}, endpoint)
	})
	if err != nil {
		return nil, c.translate(err)
	}

	if msg, ok := c.classifier.Business(http.StatusOK, payload); ok {
		return nil, NewError(KindBusiness, 0, msg, map[string]any{"recurso": res.Name}, nil)
	}
	return payload, nil
}

// translate converte falhas não transitórias da SED nos tipos de erro expostos.
func (c *Client) translate(err error) error {
	var upstream *UpstreamError
	if _, ok := AsError(err); ok || !errors.As(err, &upstream) {
		return err
	}
	ctx := map[string]any{
		"upstream_status": upstream.Status,
		"response_body":   truncateBody(upstream.Body),
	}
	if upstream.Status == http.StatusUnauthorized {
		return NewError(KindTokenExpired, 0, "token recusado pela SED", ctx, err)
	}
	if upstream.Status == http.StatusTooManyRequests {
		return NewError(KindRateLimitExceeded, 0, "limite de requisições da SED excedido", ctx, err)
	}
	if msg, ok := c.classifier.Business(upstream.Status, upstream.Body); ok {
		return NewError(KindBusiness, 0, msg, ctx, err)
	}
	return NewError(KindRequestFailed, upstream.Status, "falha na requisição à SED", ctx, err)
}

// send faz uma única chamada GET com timeout próprio.
func (c *Client) send(ctx context.Context, resource string, decorate func(*http.Request), endpoint string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(KindConfiguration, 0, "URL da SED inválida", map[string]any{"endpoint": endpoint}, err)
	}
	req.Header.Set("Accept", "application/json")
	decorate(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Upstream(resource, 0, time.Since(started))
		c.logCall(resource, endpoint, 0, time.Since(started), nil, err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	elapsed := time.Since(started)
	c.metrics.Upstream(resource, resp.StatusCode, elapsed)
	if err != nil {
		c.logCall(resource, endpoint, resp.StatusCode, elapsed, nil, err)
		return nil, &TransportError{Err: err}
	}
	c.logCall(resource, endpoint, resp.StatusCode, elapsed, body, nil)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: body}
	}
	if !json.Valid(body) {
		return nil, NewError(KindUnexpected, http.StatusBadGateway, "resposta da SED não é JSON", map[string]any{"response_body": truncateBody(body)}, nil)
	}
	return json.RawMessage(body), nil
}

func (c *Client) logCall(resource, endpoint string, status int, elapsed time.Duration, body []byte, err error) {
	if !c.cfg.LogRequests && err == nil {
		return
	}
	evt := c.log.Debug()
	if err != nil {
		evt = c.log.Warn().Err(err)
	}
	evt = evt.Str("recurso", resource).Str("endpoint", redactQuery(endpoint)).Int("status", status).Dur("duracao", elapsed)
	if c.cfg.LogBodies && body != nil {
		if len(body) > maxBodyLogged {
			body = body[:maxBodyLogged]
		}
		evt = evt.Bytes("corpo", body)
	}
	evt.Msg("chamada SED")
}

func (c *Client) policyFor(resource string) RetryPolicy {
	policy := c.cfg.Retry
	policy.OnRetry = func(attempt int, err error) {
		c.metrics.Retry(resource, attempt)
		c.log.Warn().Err(err).Str("recurso", resource).Int("tentativa", attempt).
			Dur("espera", policy.BackoffFor(attempt)).Msg("nova tentativa na SED")
	}
	return policy
}

func (c *Client) ttlFor(res Resource) time.Duration {
	if ttl, ok := c.cfg.ResourceTTL[res.Name]; ok && ttl > 0 {
		return ttl
	}
	if res.TTL > 0 {
		return res.TTL
	}
	return c.cfg.DefaultTTL
}

func (c *Client) cacheKey(scope Scope, res Resource, params Params) string {
	key := fmt.Sprintf("%s%s:%016x", tenantPrefix(scope.tenantKey()), res.Name, xxhash.Sum64String(params.normalized()))
	if res.UserScoped && strings.TrimSpace(scope.UserID) != "" {
		return userPrefix(strings.TrimSpace(scope.UserID)) + key
	}
	return key
}

// surface registra o erro exposto ao chamador e o devolve.
func (c *Client) surface(op string, err *Error) *Error {
	c.metrics.Failure(err.Kind)
	evt := c.log.Error()
	if err.Kind == KindInvalidParameter || err.Kind == KindBusiness {
		evt = c.log.Info()
	}
	evt.Err(err.Err).Str("operacao", op).Str("kind", err.Kind.String()).Int("status", err.Status).
		Interface("contexto", err.Context).Msg(err.Message)
	return err
}

func (s Scope) tenantKey() string {
	if t := strings.TrimSpace(s.TenantID); t != "" {
		return t
	}
	return defaultTenantKey
}

// Os identificadores são escapados para que ":" não atravesse namespaces.
func tenantPrefix(tenantKey string) string {
	return "tenant:" + url.QueryEscape(tenantKey) + ":"
}

func userPrefix(userID string) string {
	return "user:" + url.QueryEscape(userID) + ":"
}

func redactQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 && len(endpoint) > i+1 {
		return endpoint[:i] + "?…"
	}
	return endpoint
}

// authenticator implementa Authenticator sobre o Client.
type authenticator struct {
	c *Client
}

type authResponse struct {
	OutAutenticacao string      `json:"outAutenticacao"`
	Token           string      `json:"token"`
	ExpiresIn       json.Number `json:"expires_in"`
	Lifetime        json.Number `json:"lifetime"`
}

func (a authenticator) Authenticate(ctx context.Context, cs CredentialSet) (AuthResult, error) {
	c := a.c
	endpoint := c.baseURL + "/" + authPath

	body, err := Execute(ctx, c.policyFor("autenticacao"), func(ctx context.Context) (json.RawMessage, error) {
		return c.send(ctx, "autenticacao", func(req *http.Request) {
			req.SetBasicAuth(cs.Username, cs.Password)
		}, endpoint)
	})
	if err != nil {
		var upstream *UpstreamError
		if _, ok := AsError(err); !ok && errors.As(err, &upstream) {
			return AuthResult{}, NewError(KindAuthenticationFailed, 0, "credenciais recusadas pela SED", map[string]any{
				"upstream_status": upstream.Status,
				"response_body":   truncateBody(upstream.Body),
			}, err)
		}
		return AuthResult{}, err
	}

	if msg, ok := c.classifier.Business(http.StatusOK, body); ok {
		return AuthResult{}, NewError(KindAuthenticationFailed, 0, msg, nil, nil)
	}

	var out authResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return AuthResult{}, NewError(KindAuthenticationFailed, 0, "resposta de autenticação inválida", nil, err)
	}

	token := firstNonEmpty(out.OutAutenticacao, out.Token)
	if token == "" {
		return AuthResult{}, NewError(KindAuthenticationFailed, 0, "SED não devolveu token", nil, nil)
	}
	return AuthResult{Token: token, Lifetime: lifetimeOf(out.ExpiresIn, out.Lifetime)}, nil
}

func lifetimeOf(values ...json.Number) time.Duration {
	for _, v := range values {
		if v == "" {
			continue
		}
		if n, err := v.Int64(); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		if f, err := v.Float64(); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 0
}
