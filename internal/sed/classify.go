package sed

import (
	"encoding/json"
	"net/http"
	"strings"
)

// BusinessClassifier decide se uma resposta da SED é uma recusa de negócio.
type BusinessClassifier interface {
	Business(status int, body []byte) (message string, ok bool)
}

// FieldClassifier trata como recusa de negócio o status 422 e respostas JSON
// cujo campo de erro (ex.: outErro) venha preenchido. Mensagens de registro
// não encontrado não contam como recusa.
type FieldClassifier struct {
	Fields          []string
	NotFoundMarkers []string
}

// DefaultClassifier usa outErro e os marcadores usuais de "não encontrado".
func DefaultClassifier(fields []string) FieldClassifier {
	if len(fields) == 0 {
		fields = []string{"outErro"}
	}
	return FieldClassifier{
		Fields:          fields,
		NotFoundMarkers: []string{"não encontrad", "nao encontrad", "nenhum registro", "não localizad", "nao localizad"},
	}
}

// Business implementa BusinessClassifier.
func (c FieldClassifier) Business(status int, body []byte) (string, bool) {
	msg := c.errorField(body)
	if status == http.StatusUnprocessableEntity {
		if msg == "" {
			msg = "requisição rejeitada pela SED"
		}
		return msg, true
	}
	if status >= 500 || msg == "" || c.notFound(msg) {
		return "", false
	}
	return msg, true
}

func (c FieldClassifier) errorField(body []byte) string {
	var doc map[string]any
	if len(body) == 0 || json.Unmarshal(body, &doc) != nil {
		return ""
	}
	for _, field := range c.Fields {
		if s, ok := doc[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (c FieldClassifier) notFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range c.NotFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
