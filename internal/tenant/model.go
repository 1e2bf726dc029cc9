package tenant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("tenant not found")
	// ErrNoSEDCredentials indica tenant sem credencial SED ativa cadastrada.
	ErrNoSEDCredentials = errors.New("tenant sem credenciais SED")
)

// Tenant representa um município/cliente na plataforma.
type Tenant struct {
	ID          uuid.UUID      `json:"id"`
	Slug        string         `json:"slug"`
	DisplayName string         `json:"display_name"`
	Domain      string         `json:"domain"`
	Status      string         `json:"status"`
	Settings    map[string]any `json:"settings"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateTenantInput contém os campos necessários para registrar um tenant.
type CreateTenantInput struct {
	Slug        string
	DisplayName string
	Domain      string
	Settings    map[string]any
}

// SEDCredentials é o conjunto de credenciais da SED de um município.
// Apenas uma linha ativa por tenant; alterações criam nova linha e desativam a anterior.
type SEDCredentials struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Usuario       string     `json:"usuario"`
	Senha         string     `json:"-"`
	DiretoriaID   string     `json:"diretoria_id"`
	MunicipioID   string     `json:"municipio_id"`
	RedeEnsinoCod string     `json:"rede_ensino_cod"`
	Ativo         bool       `json:"ativo"`
	ValidadoEm    *time.Time `json:"validado_em"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Validated indica credencial ativa e já aceita pela SED.
func (c *SEDCredentials) Validated() bool {
	return c != nil && c.Ativo && c.ValidadoEm != nil
}

// SaveSEDCredentialsInput descreve a troca de credenciais de um tenant.
// ValidadoEm é o instante em que a SED aceitou o par usuário/senha.
type SaveSEDCredentialsInput struct {
	TenantID      uuid.UUID
	Usuario       string
	Senha         string
	DiretoriaID   string
	MunicipioID   string
	RedeEnsinoCod string
	ValidadoEm    time.Time
}
