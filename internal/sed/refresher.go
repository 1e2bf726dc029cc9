package sed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher renova em segundo plano os tokens próximos de expirar.
type Refresher struct {
	tokens   *TokenManager
	interval time.Duration
	idle     time.Duration
	log      zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
}

// NewRefresher cria o loop; credenciais sem uso há mais de idle deixam de ser renovadas.
func NewRefresher(tokens *TokenManager, interval, idle time.Duration, logger zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Refresher{
		tokens:   tokens,
		interval: interval,
		idle:     idle,
		log:      logger.With().Str("component", "sed_refresher").Logger(),
	}
}

// Start inicia o loop periódico. Pode ser chamado mais de uma vez.
func (r *Refresher) Start(parent context.Context) {
	r.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		r.cancel = cancel
		go r.runLoop(ctx)
	})
}

// Stop encerra o loop.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Refresher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("renovação de tokens iniciada")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("renovação de tokens encerrada")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executa um ciclo de renovação.
func (r *Refresher) RunOnce(ctx context.Context) int {
	since := r.tokens.opts.Clock().Add(-r.idle)
	refreshed := r.tokens.RefreshExpiring(ctx, since)
	if refreshed > 0 {
		r.log.Debug().Int("renovados", refreshed).Msg("tokens SED renovados")
	}
	return refreshed
}
