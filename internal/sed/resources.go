package sed

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const referenceTTL = 24 * time.Hour

// Recursos consultados na SED.
var (
	ResourceEscolas = Resource{
		Name:     "escolas",
		Path:     "DadosBasicos/EscolasPorMunicipio",
		Fill:     fillRede,
		Required: []string{"inDiretoria", "inMunicipio"},
	}
	ResourceDiretorias = Resource{
		Name: "diretorias",
		Path: "DadosBasicos/Diretorias",
		TTL:  referenceTTL,
	}
	ResourceClasses = Resource{
		Name: "classes",
		Path: "RelacaoClasses/RelacaoClasses",
	}
	ResourceClasse = Resource{
		Name:       "classe",
		Path:       "TurmaClasse/ConsultaClasse",
		UserScoped: true,
	}
	ResourceAluno = Resource{
		Name:       "aluno",
		Path:       "Aluno/ExibirFichaAluno",
		UserScoped: true,
	}
	ResourceTiposEnsino = Resource{
		Name: "tipos_ensino",
		Path: "DadosBasicos/TipoEnsino",
		TTL:  referenceTTL,
	}
)

func fillRede(cs CredentialSet, p Params) {
	if p["inDiretoria"] == "" {
		p["inDiretoria"] = cs.DiretoriaID
	}
	if p["inMunicipio"] == "" {
		p["inMunicipio"] = cs.MunicipioID
	}
	if p["inRedeEnsino"] == "" && cs.RedeEnsinoCod != "" {
		p["inRedeEnsino"] = cs.RedeEnsinoCod
	}
}

// EscolasParams filtra escolas; códigos vazios usam os do tenant.
type EscolasParams struct {
	DiretoriaID   string `param:"inDiretoria" validate:"omitempty,digits,max=10"`
	MunicipioID   string `param:"inMunicipio" validate:"omitempty,digits,max=10"`
	RedeEnsinoCod string `param:"inRedeEnsino" validate:"omitempty,digits,max=3"`
}

// ClassesParams filtra as classes de uma escola no ano letivo.
type ClassesParams struct {
	AnoLetivo     string `param:"inAnoLetivo" validate:"required,digits,len=4"`
	CodEscola     string `param:"inCodEscola" validate:"required,digits,max=10"`
	CodTipoEnsino string `param:"inCodTipoEnsino" validate:"omitempty,digits,max=4"`
	CodSerieAno   string `param:"inCodSerieAno" validate:"omitempty,digits,max=4"`
	CodTurno      string `param:"inCodTurno" validate:"omitempty,digits,max=2"`
	Semestre      string `param:"inSemestre" validate:"omitempty,oneof=0 1 2"`
}

// ClasseParams identifica uma classe.
type ClasseParams struct {
	NumClasse string `param:"inNumClasse" validate:"required,digits,max=12"`
}

// AlunoParams identifica o aluno pelo RA.
type AlunoParams struct {
	NumRA    string `param:"inNumRA" validate:"required,digits,max=12"`
	DigitoRA string `param:"inDigitoRA" validate:"omitempty,alphanum,max=1"`
	SiglaUF  string `param:"inSiglaUFRA" validate:"omitempty,alpha,len=2"`
}

// ListarEscolas devolve as escolas da diretoria/município.
func (c *Client) ListarEscolas(ctx context.Context, scope Scope, p EscolasParams) (json.RawMessage, error) {
	if err := c.validate(p); err != nil {
		return nil, err
	}
	return c.Fetch(ctx, scope, ResourceEscolas, Params{
		"inDiretoria":  p.DiretoriaID,
		"inMunicipio":  p.MunicipioID,
		"inRedeEnsino": p.RedeEnsinoCod,
	})
}

// ListarDiretorias devolve as diretorias de ensino.
func (c *Client) ListarDiretorias(ctx context.Context, scope Scope) (json.RawMessage, error) {
	return c.Fetch(ctx, scope, ResourceDiretorias, nil)
}

// ListarClasses devolve as classes de uma escola.
func (c *Client) ListarClasses(ctx context.Context, scope Scope, p ClassesParams) (json.RawMessage, error) {
	if err := c.validate(p); err != nil {
		return nil, err
	}
	return c.Fetch(ctx, scope, ResourceClasses, Params{
		"inAnoLetivo":     p.AnoLetivo,
		"inCodEscola":     p.CodEscola,
		"inCodTipoEnsino": p.CodTipoEnsino,
		"inCodSerieAno":   p.CodSerieAno,
		"inCodTurno":      p.CodTurno,
		"inSemestre":      p.Semestre,
	})
}

// ConsultarClasse devolve a classe com seus alunos.
func (c *Client) ConsultarClasse(ctx context.Context, scope Scope, p ClasseParams) (json.RawMessage, error) {
	if err := c.validate(p); err != nil {
		return nil, err
	}
	return c.Fetch(ctx, scope, ResourceClasse, Params{"inNumClasse": p.NumClasse})
}

// ConsultarAluno devolve a ficha do aluno; UF padrão SP.
func (c *Client) ConsultarAluno(ctx context.Context, scope Scope, p AlunoParams) (json.RawMessage, error) {
	if err := c.validate(p); err != nil {
		return nil, err
	}
	uf := strings.ToUpper(strings.TrimSpace(p.SiglaUF))
	if uf == "" {
		uf = "SP"
	}
	return c.Fetch(ctx, scope, ResourceAluno, Params{
		"inNumRA":     p.NumRA,
		"inDigitoRA":  strings.ToUpper(p.DigitoRA),
		"inSiglaUFRA": uf,
	})
}

// ListarTiposEnsino devolve os tipos de ensino cadastrados na SED.
func (c *Client) ListarTiposEnsino(ctx context.Context, scope Scope) (json.RawMessage, error) {
	return c.Fetch(ctx, scope, ResourceTiposEnsino, nil)
}

func (c *Client) validate(p any) error {
	fields, err := c.validator.Struct(p)
	if err != nil {
		return c.surface("validar", NewError(KindInvalidParameter, 0, "parâmetros inválidos", nil, err))
	}
	if len(fields) > 0 {
		return c.surface("validar", NewError(KindInvalidParameter, 0, "parâmetros inválidos", map[string]any{"campos": fields}, nil))
	}
	return nil
}
