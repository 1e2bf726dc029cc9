package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/gestaozabele/gestao-escolar/internal/http/middleware"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
)

func (h *Handler) registerSEDRoutes(r chi.Router) {
	r.Route("/sed", func(sr chi.Router) {
		sr.Get("/escolas", h.ListarEscolas)
		sr.Get("/diretorias", h.ListarDiretorias)
		sr.Get("/classes", h.ListarClasses)
		sr.Get("/classes/{numClasse}", h.ConsultarClasse)
		sr.Get("/alunos/{ra}", h.ConsultarAluno)
		sr.Get("/tipos-ensino", h.ListarTiposEnsino)

		sr.With(httpmiddleware.RequireRoles("SAAS_ADMIN", "SAAS_OWNER", "ADMIN", "SECRETARIO")).
			Post("/cache/limpar", h.LimparCache)
	})
}

func scopeFrom(r *http.Request) sed.Scope {
	return sed.Scope{
		TenantID: httpmiddleware.GetTenant(r.Context()),
		UserID:   httpmiddleware.GetSubject(r.Context()),
	}
}

// query aceita o nome curto e o nome SED (inXxx) do parâmetro.
func query(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// ListarEscolas devolve as escolas da rede do município.
func (h *Handler) ListarEscolas(w http.ResponseWriter, r *http.Request) {
	payload, err := h.sed.ListarEscolas(r.Context(), scopeFrom(r), sed.EscolasParams{
		DiretoriaID:   query(r, "diretoria", "inDiretoria"),
		MunicipioID:   query(r, "municipio", "inMunicipio"),
		RedeEnsinoCod: query(r, "rede", "inRedeEnsino"),
	})
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// ListarDiretorias devolve as diretorias de ensino.
func (h *Handler) ListarDiretorias(w http.ResponseWriter, r *http.Request) {
	payload, err := h.sed.ListarDiretorias(r.Context(), scopeFrom(r))
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// ListarClasses devolve as classes de uma escola no ano letivo.
func (h *Handler) ListarClasses(w http.ResponseWriter, r *http.Request) {
	payload, err := h.sed.ListarClasses(r.Context(), scopeFrom(r), sed.ClassesParams{
		AnoLetivo:     query(r, "ano", "inAnoLetivo"),
		CodEscola:     query(r, "escola", "inCodEscola"),
		CodTipoEnsino: query(r, "tipo_ensino", "inCodTipoEnsino"),
		CodSerieAno:   query(r, "serie", "inCodSerieAno"),
		CodTurno:      query(r, "turno", "inCodTurno"),
		Semestre:      query(r, "semestre", "inSemestre"),
	})
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// ConsultarClasse devolve a classe e seus alunos.
func (h *Handler) ConsultarClasse(w http.ResponseWriter, r *http.Request) {
	payload, err := h.sed.ConsultarClasse(r.Context(), scopeFrom(r), sed.ClasseParams{
		NumClasse: strings.TrimSpace(chi.URLParam(r, "numClasse")),
	})
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// ConsultarAluno devolve a ficha do aluno. O RA pode vir como "123456789-0".
func (h *Handler) ConsultarAluno(w http.ResponseWriter, r *http.Request) {
	ra := strings.TrimSpace(chi.URLParam(r, "ra"))
	digito := query(r, "digito", "inDigitoRA")
	if num, dig, ok := strings.Cut(ra, "-"); ok {
		ra = num
		if digito == "" {
			digito = dig
		}
	}

	payload, err := h.sed.ConsultarAluno(r.Context(), scopeFrom(r), sed.AlunoParams{
		NumRA:    ra,
		DigitoRA: digito,
		SiglaUF:  query(r, "uf", "inSiglaUFRA"),
	})
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// ListarTiposEnsino devolve os tipos de ensino da SED.
func (h *Handler) ListarTiposEnsino(w http.ResponseWriter, r *http.Request) {
	payload, err := h.sed.ListarTiposEnsino(r.Context(), scopeFrom(r))
	if err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}

// LimparCache remove todas as respostas e tokens SED em cache.
func (h *Handler) LimparCache(w http.ResponseWriter, r *http.Request) {
	if err := h.sed.ClearAllCaches(r.Context()); err != nil {
		WriteSEDError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"limpo": true})
}

// Logout encerra a sessão local e descarta os dados SED em cache.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sed.ClearAllCaches(r.Context()); err != nil {
		WriteSEDError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     httpmiddleware.IdentityCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.devCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
