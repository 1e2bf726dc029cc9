package sed

import "time"

// Metrics recebe os eventos observáveis da camada SED.
type Metrics interface {
	CacheHit(resource string)
	CacheMiss(resource string)
	TokenRefresh(reason string)
	Retry(resource string, attempt int)
	Upstream(resource string, status int, elapsed time.Duration)
	Failure(kind Kind)
}

type nopMetrics struct{}

func (nopMetrics) CacheHit(string) {}
func (nopMetrics) CacheMiss(string) {}
func (nopMetrics) TokenRefresh(string) {}
func (nopMetrics) Retry(string, int) {}
func (nopMetrics) Upstream(string, int, time.Duration) {}
func (nopMetrics) Failure(Kind) {}
