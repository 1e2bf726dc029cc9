package sed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gestaozabele/gestao-escolar/internal/cache"
)

// Token é o bearer emitido pela SED para um conjunto de credenciais.
type Token struct {
	CredentialID string    `json:"credential_id"`
	Value        string    `json:"value"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ValidAt indica se o token ainda pode ser usado em now, descontado o buffer.
func (t Token) ValidAt(now time.Time, buffer time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-buffer))
}

// AuthResult é a resposta do endpoint de autenticação.
type AuthResult struct {
	Token    string
	Lifetime time.Duration
}

// Authenticator troca usuário/senha por um token na SED.
type Authenticator interface {
	Authenticate(ctx context.Context, cs CredentialSet) (AuthResult, error)
}

// TokenOptions configura o TokenManager.
type TokenOptions struct {
	Buffer          time.Duration
	DefaultLifetime time.Duration
	Timeout         time.Duration
	Clock           cache.Clock
	Logger          zerolog.Logger
	Metrics         Metrics
}

// TokenManager mantém no máximo um token vivo por conjunto de credenciais.
type TokenManager struct {
	auth    Authenticator
	store   *cache.Cache
	opts    TokenOptions
	group   singleflight.Group
	log     zerolog.Logger
	metrics Metrics

	mu     sync.Mutex
	recent map[string]recentCredential
}

type recentCredential struct {
	set      CredentialSet
	lastUsed time.Time
}

// NewTokenManager cria o gerenciador sobre o store de tokens.
func NewTokenManager(auth Authenticator, store *cache.Cache, opts TokenOptions) *TokenManager {
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	if opts.DefaultLifetime <= 0 {
		opts.DefaultLifetime = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &TokenManager{
		auth:    auth,
		store:   store,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "sed_token").Logger(),
		metrics: opts.Metrics,
		recent:  make(map[string]recentCredential),
	}
}

// Buffer devolve a margem de segurança antes da expiração.
func (m *TokenManager) Buffer() time.Duration {
	return m.opts.Buffer
}

// GetValidToken devolve o token em cache ou autentica de novo quando expirado.
func (m *TokenManager) GetValidToken(ctx context.Context, cs CredentialSet) (Token, error) {
	m.touch(cs)

	if tok, ok := m.cached(ctx, cs.ID()); ok && tok.ValidAt(m.opts.Clock(), m.opts.Buffer) {
		return tok, nil
	}
	return m.refresh(ctx, cs, "expired")
}

// ForceRefresh descarta o token atual e autentica novamente.
func (m *TokenManager) ForceRefresh(ctx context.Context, cs CredentialSet) (Token, error) {
	m.touch(cs)
	if err := m.store.Forget(ctx, cs.ID()); err != nil {
		m.log.Warn().Err(err).Str("credential_id", cs.ID()).Msg("falha ao descartar token")
	}
	return m.refresh(ctx, cs, "forced")
}

// Invalidate remove o token do conjunto informado.
func (m *TokenManager) Invalidate(ctx context.Context, credentialID string) error {
	m.mu.Lock()
	delete(m.recent, credentialID)
	m.mu.Unlock()
	return m.store.Forget(ctx, credentialID)
}

// InvalidateAll remove todos os tokens.
func (m *TokenManager) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	m.recent = make(map[string]recentCredential)
	m.mu.Unlock()
	_, err := m.store.FlushAll(ctx)
	return err
}

// InvalidateTenant remove os tokens de todas as credenciais do tenant.
func (m *TokenManager) InvalidateTenant(ctx context.Context, tenantKey string) error {
	prefix := tenantKey + ":"
	m.mu.Lock()
	for id := range m.recent {
		if strings.HasPrefix(id, prefix) {
			delete(m.recent, id)
		}
	}
	m.mu.Unlock()
	_, err := m.store.ForgetPrefix(ctx, prefix)
	return err
}

// RefreshExpiring renova tokens usados desde since que entram na janela de 2×buffer.
// Devolve a quantidade de tokens renovados.
func (m *TokenManager) RefreshExpiring(ctx context.Context, since time.Time) int {
	m.mu.Lock()
	candidates := make([]CredentialSet, 0, len(m.recent))
	for id, rc := range m.recent {
		if rc.lastUsed.Before(since) {
			delete(m.recent, id)
			continue
		}
		candidates = append(candidates, rc.set)
	}
	m.mu.Unlock()

	now := m.opts.Clock()
	refreshed := 0
	for _, cs := range candidates {
		if ctx.Err() != nil {
			break
		}
		tok, ok := m.cached(ctx, cs.ID())
		if ok && tok.ValidAt(now, 2*m.opts.Buffer) {
			continue
		}
		if _, err := m.refresh(ctx, cs, "proactive"); err != nil {
			m.log.Warn().Err(err).Object("credenciais", cs).Msg("falha ao renovar token proativamente")
			continue
		}
		refreshed++
	}
	return refreshed
}

func (m *TokenManager) touch(cs CredentialSet) {
	m.mu.Lock()
	m.recent[cs.ID()] = recentCredential{set: cs, lastUsed: m.opts.Clock()}
	m.mu.Unlock()
}

func (m *TokenManager) cached(ctx context.Context, id string) (Token, bool) {
	raw, ok, err := m.store.Get(ctx, id)
	if err != nil {
		m.log.Warn().Err(err).Str("credential_id", id).Msg("store de tokens indisponível")
		return Token{}, false
	}
	if !ok {
		return Token{}, false
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, false
	}
	return tok, true
}

func (m *TokenManager) refresh(ctx context.Context, cs CredentialSet, reason string) (Token, error) {
	id := cs.ID()
	ch := m.group.DoChan(id, func() (any, error) {
		// A autenticação continua mesmo se quem pediu desistir.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.Timeout)
		defer cancel()
		return m.authenticate(actx, cs, reason)
	})

	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

func (m *TokenManager) authenticate(ctx context.Context, cs CredentialSet, reason string) (Token, error) {
	result, err := m.auth.Authenticate(ctx, cs)
	if err != nil {
		sedErr := Classify(err)
		if sedErr.Kind == KindUnexpected {
			sedErr = NewError(KindAuthenticationFailed, 0, "falha ao autenticar na SED", nil, err)
		}
		return Token{}, sedErr
	}
	if result.Token == "" {
		return Token{}, NewError(KindAuthenticationFailed, 0, "SED não devolveu token", nil, nil)
	}

	lifetime := result.Lifetime
	if lifetime <= 0 {
		lifetime = m.opts.DefaultLifetime
	}
	now := m.opts.Clock()
	tok := Token{CredentialID: cs.ID(), Value: result.Token, IssuedAt: now, ExpiresAt: now.Add(lifetime)}

	payload, err := json.Marshal(tok)
	if err == nil {
		err = m.store.Put(ctx, tok.CredentialID, payload, lifetime)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("credential_id", tok.CredentialID).Msg("falha ao gravar token")
	}

	m.metrics.TokenRefresh(reason)
	m.log.Debug().Object("credenciais", cs).Str("motivo", reason).Time("expira_em", tok.ExpiresAt).Msg("token SED renovado")
	return tok, nil
}
