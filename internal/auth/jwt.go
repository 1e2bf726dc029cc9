package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer identifica os tokens emitidos por esta API.
const Issuer = "gestao-escolar"

const clockLeeway = 30 * time.Second

// ErrInvalidToken cobre assinatura, expiração e claims obrigatórias.
var ErrInvalidToken = errors.New("token inválido")

// Claims representa as informações presentes em um JWT de acesso.
// Tenant vazio indica token aceito em qualquer município.
type Claims struct {
	Roles  []string `json:"roles"`
	Tenant string   `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// AllowsTenant indica se o token pode ser usado no tenant informado.
func (c *Claims) AllowsTenant(tenantID string) bool {
	return c.Tenant == "" || tenantID == "" || strings.EqualFold(c.Tenant, tenantID)
}

// JWTManager encapsula geração e validação de tokens HS256.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewJWTManager cria o gerenciador com segredo e TTL configurados.
func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessTTL: accessTTL, now: time.Now}
}

// GenerateAccessToken devolve o token assinado e seu jti.
func (m *JWTManager) GenerateAccessToken(subject, audience, tenant string, roles []string) (string, string, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(audience) == "" {
		return "", "", errors.New("subject e audience são obrigatórios")
	}

	now := m.now().UTC()
	jti := uuid.NewString()

	claims := Claims{
		Roles:  roles,
		Tenant: strings.TrimSpace(tenant),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// ParseAndValidate verifica assinatura, emissor, expiração e subject.
func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || len(claims.Audience) == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
