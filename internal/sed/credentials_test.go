package sed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/gestao-escolar/internal/tenant"
)

type fakeSource struct {
	rows map[uuid.UUID]*tenant.SEDCredentials
	errs map[uuid.UUID]error
}

func (f fakeSource) SEDCredentials(_ context.Context, id uuid.UUID) (*tenant.SEDCredentials, error) {
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return row, nil
}

func TestCredentialSetID(t *testing.T) {
	a := CredentialSet{TenantID: "7", Username: "m1", Password: "x"}
	b := a
	b.DiretoriaID = "10101"
	assert.Equal(t, a.ID(), b.ID(), "códigos de rede não mudam a identidade")

	c := a
	c.Password = "y"
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Contains(t, a.ID(), "7:")

	assert.Contains(t, CredentialSet{Username: "m1", Password: "x"}.ID(), "default:")
}

func TestTenantResolver(t *testing.T) {
	validated := time.Now()
	okID, pendingID, noCredsID, brokenID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	source := fakeSource{
		rows: map[uuid.UUID]*tenant.SEDCredentials{
			okID:      {Usuario: " muni ", Senha: "s", MunicipioID: "3550", Ativo: true, ValidadoEm: &validated},
			pendingID: {Usuario: "muni", Senha: "s", Ativo: true},
		},
		errs: map[uuid.UUID]error{
			noCredsID: tenant.ErrNoSEDCredentials,
			brokenID:  errors.New("conexão perdida"),
		},
	}
	defaults := CredentialSet{Username: "padrao", Password: "p", DiretoriaID: "10101", MunicipioID: "9999", RedeEnsinoCod: "2"}
	r := NewTenantResolver(source, defaults)
	ctx := context.Background()

	cs, err := r.Resolve(ctx, okID.String())
	require.NoError(t, err)
	assert.Equal(t, "muni", cs.Username)
	assert.Equal(t, "3550", cs.MunicipioID, "valor do tenant prevalece")
	assert.Equal(t, "10101", cs.DiretoriaID, "padrão completa campo ausente")
	assert.Equal(t, okID.String(), cs.TenantID)

	cs, err = r.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "padrao", cs.Username)

	_, err = r.Resolve(ctx, "nao-e-uuid")
	assert.Equal(t, KindInvalidParameter, KindOf(err))

	_, err = r.Resolve(ctx, uuid.NewString())
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	_, err = r.Resolve(ctx, pendingID.String())
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = r.Resolve(ctx, noCredsID.String())
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = r.Resolve(ctx, brokenID.String())
	assert.Equal(t, KindUnexpected, KindOf(err))

	_, err = NewTenantResolver(source, CredentialSet{}).Resolve(ctx, "")
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestStaticResolver(t *testing.T) {
	cs, err := StaticResolver{Set: CredentialSet{Username: "u", Password: "p"}}.Resolve(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", cs.TenantID)

	_, err = StaticResolver{}.Resolve(context.Background(), "")
	assert.Equal(t, KindConfiguration, KindOf(err))
}
