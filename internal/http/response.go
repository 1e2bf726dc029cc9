package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/gestao-escolar/internal/sed"
)

// SuccessEnvelope padroniza respostas com dados.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError escreve erro no formato {"error":{message,type,status_code,context}}.
func WriteError(w http.ResponseWriter, status int, kind sed.Kind, message string, context map[string]any) {
	writeSEDError(w, sed.NewError(kind, status, message, context, nil))
}

// WriteSEDError serializa qualquer falha da camada SED; erros sem tipo viram UnexpectedError.
func WriteSEDError(w http.ResponseWriter, err error) {
	sedErr := sed.Classify(err)
	if sedErr == nil {
		log.Error().Msg("WriteSEDError chamado sem erro")
		sedErr = sed.NewError(sed.KindUnexpected, 0, "erro inesperado", nil, nil)
	}
	writeSEDError(w, sedErr)
}

func writeSEDError(w http.ResponseWriter, sedErr *sed.Error) {
	if sedErr.Kind == sed.KindRateLimitExceeded {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(sedErr.Status)
	_ = json.NewEncoder(w).Encode(sedErr.Response())
}
