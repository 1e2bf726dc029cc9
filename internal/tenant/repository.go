package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestaozabele/gestao-escolar/internal/db"
)

const tenantColumns = `id, slug, display_name, domain, status, settings, created_at, updated_at`

const sedColumns = `id, tenant_id, usuario, senha, diretoria_id, municipio_id, rede_ensino_cod, ativo, validado_em, created_at`

// Repository provê acesso ao armazenamento de tenants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria um novo repositório de tenants.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByDomain busca tenant pelo domínio normalizado.
func (r *Repository) GetByDomain(ctx context.Context, domain string) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE domain = $1`, domain)
	return scanTenant(row)
}

// GetByID busca tenant pelo identificador.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// List devolve todos os tenants ordenados por criação.
func (r *Repository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tenants, nil
}

// Create insere um novo tenant e devolve os dados persistidos.
func (r *Repository) Create(ctx context.Context, input CreateTenantInput) (*Tenant, error) {
	const query = `
        INSERT INTO tenants (slug, display_name, domain, status, settings)
        VALUES ($1, $2, $3, 'active', $4)
        RETURNING ` + tenantColumns

	settingsJSON, err := jsonMarshalMap(input.Settings)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, query,
		input.Slug,
		strings.TrimSpace(input.DisplayName),
		input.Domain,
		settingsJSON,
	)
	return scanTenant(row)
}

// GetSEDCredentials devolve a credencial ativa do tenant.
func (r *Repository) GetSEDCredentials(ctx context.Context, tenantID uuid.UUID) (*SEDCredentials, error) {
	const query = `SELECT ` + sedColumns + `
        FROM tenant_sed_credenciais
        WHERE tenant_id = $1 AND ativo
        ORDER BY created_at DESC
        LIMIT 1`

	creds, err := scanSEDCredentials(r.pool.QueryRow(ctx, query, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSEDCredentials
	}
	return creds, err
}

// SaveSEDCredentials troca a credencial vigente pela nova, já validada, numa única transação.
func (r *Repository) SaveSEDCredentials(ctx context.Context, input SaveSEDCredentialsInput) (*SEDCredentials, error) {
	if input.ValidadoEm.IsZero() {
		return nil, errors.New("credencial SED sem data de validação")
	}

	var saved *SEDCredentials
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, input.TenantID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `UPDATE tenant_sed_credenciais SET ativo = false WHERE tenant_id = $1 AND ativo`, input.TenantID); err != nil {
			return err
		}

		const insert = `
            INSERT INTO tenant_sed_credenciais (tenant_id, usuario, senha, diretoria_id, municipio_id, rede_ensino_cod, ativo, validado_em)
            VALUES ($1, $2, $3, $4, $5, $6, true, $7)
            RETURNING ` + sedColumns

		creds, err := scanSEDCredentials(tx.QueryRow(ctx, insert,
			input.TenantID,
			input.Usuario,
			input.Senha,
			input.DiretoriaID,
			input.MunicipioID,
			input.RedeEnsinoCod,
			input.ValidadoEm,
		))
		if err != nil {
			return err
		}
		saved = creds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var (
		t           Tenant
		settingsRaw []byte
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.DisplayName, &t.Domain, &t.Status, &settingsRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	settings, err := DecodeSettings(settingsRaw)
	if err != nil {
		return nil, err
	}
	t.Settings = settings
	return &t, nil
}

func scanSEDCredentials(row pgx.Row) (*SEDCredentials, error) {
	var c SEDCredentials
	if err := row.Scan(&c.ID, &c.TenantID, &c.Usuario, &c.Senha, &c.DiretoriaID, &c.MunicipioID, &c.RedeEnsinoCod, &c.Ativo, &c.ValidadoEm, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func jsonMarshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
