package sed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifica as falhas devolvidas pela camada de acesso à SED.
type Kind int

const (
	KindUnexpected Kind = iota
	KindAuthenticationFailed
	KindTokenExpired
	KindConfiguration
	KindNetwork
	KindRateLimitExceeded
	KindInvalidParameter
	KindRequestFailed
	KindBusiness
)

var kindNames = map[Kind]string{
	KindUnexpected:           "UnexpectedError",
	KindAuthenticationFailed: "AuthenticationFailed",
	KindTokenExpired:         "TokenExpired",
	KindConfiguration:        "ConfigurationError",
	KindNetwork:              "NetworkError",
	KindRateLimitExceeded:    "RateLimitExceeded",
	KindInvalidParameter:     "InvalidParameter",
	KindRequestFailed:        "RequestFailed",
	KindBusiness:             "BusinessError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnexpected]
}

// DefaultStatus devolve o status HTTP equivalente do tipo.
func (k Kind) DefaultStatus() int {
	switch k {
	case KindAuthenticationFailed, KindTokenExpired:
		return http.StatusUnauthorized
	case KindNetwork:
		return http.StatusServiceUnavailable
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindInvalidParameter:
		return http.StatusBadRequest
	case KindBusiness:
		return http.StatusUnprocessableEntity
	case KindRequestFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error é a falha tipada exposta aos chamadores.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Context map[string]any
	Err     error
}

// NewError cria erro do tipo kind; status <= 0 usa o padrão do tipo.
func NewError(kind Kind, status int, message string, ctx map[string]any, cause error) *Error {
	if status <= 0 {
		status = kind.DefaultStatus()
	}
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &Error{Kind: kind, Status: status, Message: message, Context: ctx, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sed: %s (%d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("sed: %s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extrai *Error da cadeia de err.
func AsError(err error) (*Error, bool) {
	var sedErr *Error
	if errors.As(err, &sedErr) {
		return sedErr, true
	}
	return nil, false
}

// KindOf devolve o tipo de err; erros não classificados são KindUnexpected.
func KindOf(err error) Kind {
	if sedErr, ok := AsError(err); ok {
		return sedErr.Kind
	}
	return KindUnexpected
}

// Classify garante um *Error para qualquer falha, sem perder a causa.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if sedErr, ok := AsError(err); ok {
		return sedErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, 0, "tempo limite excedido", nil, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindUnexpected, 0, "requisição cancelada", nil, err)
	}
	return NewError(KindUnexpected, 0, "erro inesperado", nil, err)
}

// ErrorBody é o formato serializado de um erro para os chamadores.
type ErrorBody struct {
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	StatusCode int            `json:"status_code"`
	Context    map[string]any `json:"context"`
}

// ErrorResponse envelopa ErrorBody em {"error": ...}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Response monta o corpo serializável do erro.
func (e *Error) Response() ErrorResponse {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return ErrorResponse{Error: ErrorBody{
		Message:    e.Message,
		Type:       e.Kind.String(),
		StatusCode: e.Status,
		Context:    ctx,
	}}
}
