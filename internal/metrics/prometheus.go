// Package metrics publica as métricas da integração SED no Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gestaozabele/gestao-escolar/internal/sed"
)

var (
	cacheHitsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sed_cache_hits_total",
		Help: "Total de respostas servidas do cache",
	}, []string{"recurso"})

	cacheMissesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sed_cache_misses_total",
		Help: "Total de consultas sem resposta em cache",
	}, []string{"recurso"})

	tokenRefreshCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sed_token_refresh_total",
		Help: "Total de autenticações na SED",
	}, []string{"motivo"}) // expired, forced, proactive

	retryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sed_retry_total",
		Help: "Total de novas tentativas",
	}, []string{"recurso", "tentativa"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sed_upstream_duration_seconds",
		Help:    "Duração das chamadas à SED",
		Buckets: prometheus.DefBuckets,
	}, []string{"recurso", "status"})

	failureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sed_errors_total",
		Help: "Total de erros devolvidos pela camada SED",
	}, []string{"kind"})
)

// Prometheus implementa sed.Metrics.
type Prometheus struct{}

// NewPrometheus cria o publicador.
func NewPrometheus() sed.Metrics {
	return Prometheus{}
}

func (Prometheus) CacheHit(resource string) {
	cacheHitsCounter.WithLabelValues(resource).Inc()
}

func (Prometheus) CacheMiss(resource string) {
	cacheMissesCounter.WithLabelValues(resource).Inc()
}

func (Prometheus) TokenRefresh(reason string) {
	tokenRefreshCounter.WithLabelValues(reason).Inc()
}

func (Prometheus) Retry(resource string, attempt int) {
	retryCounter.WithLabelValues(resource, strconv.Itoa(attempt)).Inc()
}

func (Prometheus) Upstream(resource string, status int, elapsed time.Duration) {
	label := "erro"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamDuration.WithLabelValues(resource, label).Observe(elapsed.Seconds())
}

func (Prometheus) Failure(kind sed.Kind) {
	failureCounter.WithLabelValues(kind.String()).Inc()
}
