package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gestaozabele/gestao-escolar/internal/util"
)

// Store é o contrato de persistência usado pelo Service.
type Store interface {
	GetByDomain(ctx context.Context, domain string) (*Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Create(ctx context.Context, input CreateTenantInput) (*Tenant, error)
	GetSEDCredentials(ctx context.Context, tenantID uuid.UUID) (*SEDCredentials, error)
	SaveSEDCredentials(ctx context.Context, input SaveSEDCredentialsInput) (*SEDCredentials, error)
}

// Service contém as regras de negócio para resolução e cadastro de tenants.
type Service struct {
	repo     Store
	cache    sync.Map
	cacheTTL time.Duration
	now      func() time.Time
}

// cachedTenant armazena dados no cache em memória.
type cachedTenant struct {
	tenant   Tenant
	expireAt time.Time
}

// NewService cria uma nova instância de Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo, cacheTTL: 2 * time.Minute, now: time.Now}
}

// Resolve encontra tenant pelo host informado.
func (s *Service) Resolve(ctx context.Context, host string) (*Tenant, error) {
	normalized := normalizeDomain(host)
	if normalized == "" {
		return nil, ErrNotFound
	}

	if v, ok := s.cache.Load(normalized); ok {
		entry := v.(cachedTenant)
		if s.now().Before(entry.expireAt) {
			tenantCopy := entry.tenant
			return &tenantCopy, nil
		}
		s.cache.Delete(normalized)
	}

	tenant, err := s.repo.GetByDomain(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.remember(*tenant)
	tenantCopy := *tenant
	return &tenantCopy, nil
}

// Get busca tenant pelo ID textual; IDs malformados equivalem a ErrNotFound.
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	id, err := uuid.Parse(strings.TrimSpace(tenantID))
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Create registra um novo tenant.
func (s *Service) Create(ctx context.Context, input CreateTenantInput) (*Tenant, error) {
	input.Slug = normalizeSlug(input.Slug)
	input.Domain = normalizeDomain(input.Domain)
	if err := util.RequireString(input.Slug, "slug"); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.Domain, "domínio"); err != nil {
		return nil, err
	}
	if input.Settings == nil {
		input.Settings = map[string]any{}
	}

	tenant, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	s.remember(*tenant)
	return tenant, nil
}

// List devolve todos os tenants.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	// Atualiza cache com o snapshot atual.
	for _, tenant := range tenants {
		s.remember(tenant)
	}
	return tenants, nil
}

// SEDCredentials devolve a credencial ativa do tenant, validando a existência do tenant.
func (s *Service) SEDCredentials(ctx context.Context, tenantID uuid.UUID) (*SEDCredentials, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.GetSEDCredentials(ctx, tenantID)
}

// SaveValidatedSEDCredentials grava credencial já aceita pela SED como a vigente do tenant.
// Em caso de erro a credencial anterior continua ativa.
func (s *Service) SaveValidatedSEDCredentials(ctx context.Context, input SaveSEDCredentialsInput) (*SEDCredentials, error) {
	input.Usuario = strings.TrimSpace(input.Usuario)
	input.DiretoriaID = strings.TrimSpace(input.DiretoriaID)
	input.MunicipioID = strings.TrimSpace(input.MunicipioID)
	input.RedeEnsinoCod = strings.TrimSpace(input.RedeEnsinoCod)
	if input.Usuario == "" || input.Senha == "" {
		return nil, errors.New("usuário e senha SED são obrigatórios")
	}
	input.ValidadoEm = s.now()
	return s.repo.SaveSEDCredentials(ctx, input)
}

func (s *Service) remember(t Tenant) {
	s.cache.Store(t.Domain, cachedTenant{tenant: t, expireAt: s.now().Add(s.cacheTTL)})
}

func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimSuffix(domain, ".")
	if idx := strings.Index(domain, ":"); idx != -1 {
		domain = domain[:idx]
	}
	return domain
}

func normalizeSlug(slug string) string {
	slug = strings.TrimSpace(strings.ToLower(slug))
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}

// DecodeSettings tenta converter dados arbitrários em map.
func DecodeSettings(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return map[string]any{}, nil
	}
	return m, nil
}
