package sed

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/gestao-escolar/internal/config"
	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

const defaultTenantKey = "default"

// CredentialSet agrupa usuário, senha e códigos de rede usados nas chamadas à SED.
type CredentialSet struct {
	TenantID      string
	Username      string
	Password      string
	DiretoriaID   string
	MunicipioID   string
	RedeEnsinoCod string
}

// ID identifica o conjunto de forma determinística; muda quando usuário ou senha mudam.
func (c CredentialSet) ID() string {
	tenantKey := c.TenantID
	if tenantKey == "" {
		tenantKey = defaultTenantKey
	}
	sum := xxhash.Sum64String(c.Username + "\x00" + c.Password)
	return tenantKey + ":" + strconv.FormatUint(sum, 16)
}

// TenantKey devolve o identificador do tenant usado nas chaves de cache.
func (c CredentialSet) TenantKey() string {
	if c.TenantID == "" {
		return defaultTenantKey
	}
	return c.TenantID
}

// Complete indica que usuário e senha estão presentes.
func (c CredentialSet) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// MarshalZerologObject registra o conjunto sem expor a senha.
func (c CredentialSet) MarshalZerologObject(e *zerolog.Event) {
	e.Str("tenant", c.TenantKey()).Str("usuario", c.Username).Str("credential_id", c.ID())
}

// CredentialResolver devolve as credenciais SED de um tenant.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string) (CredentialSet, error)
}

// CredentialSource é a fonte de credenciais persistidas por tenant.
type CredentialSource interface {
	SEDCredentials(ctx context.Context, tenantID uuid.UUID) (*tenant.SEDCredentials, error)
}

// DefaultsFromConfig monta o conjunto padrão a partir da configuração.
func DefaultsFromConfig(cfg config.SEDConfig) CredentialSet {
	return CredentialSet{
		Username:      cfg.Username,
		Password:      cfg.Password,
		DiretoriaID:   cfg.DiretoriaID,
		MunicipioID:   cfg.MunicipioID,
		RedeEnsinoCod: cfg.RedeEnsinoCod,
	}
}

// TenantResolver resolve credenciais persistidas e completa campos ausentes com os padrões.
type TenantResolver struct {
	source   CredentialSource
	defaults CredentialSet
}

// NewTenantResolver cria o resolvedor multi-tenant.
func NewTenantResolver(source CredentialSource, defaults CredentialSet) *TenantResolver {
	defaults.TenantID = ""
	return &TenantResolver{source: source, defaults: defaults}
}

// Resolve implementa CredentialResolver.
func (r *TenantResolver) Resolve(ctx context.Context, tenantID string) (CredentialSet, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		if !r.defaults.Complete() {
			return CredentialSet{}, NewError(KindConfiguration, 0, "credenciais SED padrão não configuradas", nil, nil)
		}
		return r.defaults, nil
	}

	id, err := uuid.Parse(tenantID)
	if err != nil {
		return CredentialSet{}, NewError(KindInvalidParameter, 0, "tenant inválido", map[string]any{"tenant_id": tenantID}, err)
	}
	if r.source == nil {
		return CredentialSet{}, NewError(KindConfiguration, 0, "fonte de credenciais não configurada", nil, nil)
	}

	row, err := r.source.SEDCredentials(ctx, id)
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		return CredentialSet{}, NewError(KindConfiguration, 0, "tenant não encontrado", map[string]any{"tenant_id": tenantID}, err)
	case errors.Is(err, tenant.ErrNoSEDCredentials):
		return CredentialSet{}, NewError(KindConfiguration, 0, "tenant sem credenciais SED ativas", map[string]any{"tenant_id": tenantID}, err)
	case err != nil:
		return CredentialSet{}, NewError(KindUnexpected, 0, "falha ao carregar credenciais SED", map[string]any{"tenant_id": tenantID}, err)
	}
	if !row.Validated() {
		return CredentialSet{}, NewError(KindConfiguration, 0, "credenciais SED do tenant não validadas", map[string]any{"tenant_id": tenantID}, nil)
	}

	cs := CredentialSet{
		TenantID:      tenantID,
		Username:      strings.TrimSpace(row.Usuario),
		Password:      row.Senha,
		DiretoriaID:   firstNonEmpty(row.DiretoriaID, r.defaults.DiretoriaID),
		MunicipioID:   firstNonEmpty(row.MunicipioID, r.defaults.MunicipioID),
		RedeEnsinoCod: firstNonEmpty(row.RedeEnsinoCod, r.defaults.RedeEnsinoCod),
	}
	if !cs.Complete() {
		return CredentialSet{}, NewError(KindConfiguration, 0, "credenciais SED do tenant incompletas", map[string]any{"tenant_id": tenantID}, nil)
	}
	return cs, nil
}

// StaticResolver devolve sempre o mesmo conjunto, sem consultar o banco.
type StaticResolver struct {
	Set CredentialSet
}

// Resolve implementa CredentialResolver.
func (s StaticResolver) Resolve(_ context.Context, tenantID string) (CredentialSet, error) {
	if !s.Set.Complete() {
		return CredentialSet{}, NewError(KindConfiguration, 0, "credenciais SED incompletas", nil, nil)
	}
	cs := s.Set
	if cs.TenantID == "" {
		cs.TenantID = strings.TrimSpace(tenantID)
	}
	return cs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
