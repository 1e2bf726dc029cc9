package http

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/gestaozabele/gestao-escolar/internal/ensino"
	"github.com/gestaozabele/gestao-escolar/internal/sed"
)

type tipoEnsinoResponse struct {
	Codigo    int    `json:"codigo"`
	Descricao string `json:"descricao"`
}

func (h *Handler) registerEnsinoRoutes(r chi.Router) {
	r.Route("/ensino/tipos", func(er chi.Router) {
		er.Get("/", h.ListTiposEnsino)
		er.Get("/{tipo}/series", h.ListSeries)
		er.Get("/{tipo}/series/{serie}", h.GetSerie)
	})
}

// ListTiposEnsino devolve a tabela local de tipos de ensino ordenada por código.
func (h *Handler) ListTiposEnsino(w http.ResponseWriter, r *http.Request) {
	tipos := ensino.ListTiposEnsino()
	out := make([]tipoEnsinoResponse, 0, len(tipos))
	for codigo, descricao := range tipos {
		out = append(out, tipoEnsinoResponse{Codigo: codigo, Descricao: descricao})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Codigo < out[j].Codigo })
	WriteJSON(w, http.StatusOK, map[string]any{"tipos": out})
}

// ListSeries devolve as séries de um tipo de ensino.
func (h *Handler) ListSeries(w http.ResponseWriter, r *http.Request) {
	tipo, ok := ensino.ParseCodigo(chi.URLParam(r, "tipo"))
	if !ok {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "tipo de ensino inválido", nil)
		return
	}
	series, ok := ensino.ListSeries(tipo)
	if !ok {
		WriteError(w, http.StatusNotFound, sed.KindInvalidParameter, "tipo de ensino não mapeado", map[string]any{"tipo": tipo})
		return
	}
	descricao, _ := ensino.DescribeTipoEnsino(tipo)
	WriteJSON(w, http.StatusOK, map[string]any{
		"tipo":   tipoEnsinoResponse{Codigo: tipo, Descricao: descricao},
		"series": series,
	})
}

// GetSerie devolve o nome da classe para o par tipo + série.
func (h *Handler) GetSerie(w http.ResponseWriter, r *http.Request) {
	tipo, okTipo := ensino.ParseCodigo(chi.URLParam(r, "tipo"))
	serie, okSerie := ensino.ParseCodigo(chi.URLParam(r, "serie"))
	if !okTipo || !okSerie {
		WriteError(w, http.StatusBadRequest, sed.KindInvalidParameter, "tipo de ensino ou série inválidos", nil)
		return
	}
	nome, ok := ensino.ClassName(tipo, serie)
	if !ok {
		WriteError(w, http.StatusNotFound, sed.KindInvalidParameter, "série não mapeada", map[string]any{"tipo": tipo, "serie": serie})
		return
	}
	WriteJSON(w, http.StatusOK, ensino.Serie{Codigo: serie, Nome: nome})
}
