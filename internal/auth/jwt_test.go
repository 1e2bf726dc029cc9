package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "segredo-de-teste-com-mais-de-32-caracteres"

func TestGenerateAndParse(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	token, jti, err := m.GenerateAccessToken("user-1", "escola", "tenant-a", []string{"PROFESSOR"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Tenant != "tenant-a" || claims.ID != jti {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "PROFESSOR" {
		t.Fatalf("unexpected roles %v", claims.Roles)
	}
}

func TestParseRejectsForeignSecretAndExpired(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)

	other := NewJWTManager("outro-segredo-tambem-com-32-caracteres!", time.Minute)
	foreign, _, err := other.GenerateAccessToken("user-1", "escola", "", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.ParseAndValidate(foreign); err == nil {
		t.Fatal("expected signature error")
	}

	expired := NewJWTManager(testSecret, -time.Minute)
	old, _, err := expired.GenerateAccessToken("user-1", "escola", "", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.ParseAndValidate(old); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestParseRejectsForeignIssuer(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "outro",
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"escola"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := foreign.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestClaimsAllowsTenant(t *testing.T) {
	open := &Claims{}
	bound := &Claims{Tenant: "tenant-a"}

	if !open.AllowsTenant("tenant-b") {
		t.Fatal("token sem tenant deve valer em qualquer município")
	}
	if !bound.AllowsTenant("TENANT-A") || !bound.AllowsTenant("") {
		t.Fatal("token deve valer no próprio tenant")
	}
	if bound.AllowsTenant("tenant-b") {
		t.Fatal("token não deve valer em outro tenant")
	}
}

func TestGenerateRequiresSubject(t *testing.T) {
	if _, _, err := NewJWTManager(testSecret, time.Minute).GenerateAccessToken("", "saas", "", nil); err == nil {
		t.Fatal("expected error")
	}
}
