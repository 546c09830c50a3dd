package oracle

import (
	"github.com/rs/zerolog"
)

// ExpirySweep is a background job that logs markets past their expiry that
// nobody has resolved yet. Resolution stays an explicit operator action; the
// sweep only surfaces the backlog.
type ExpirySweep struct {
	oracle *BaseService
	log    zerolog.Logger
}

// NewExpirySweep creates a new expiry sweep job
func NewExpirySweep(oracleSvc *BaseService, log zerolog.Logger) *ExpirySweep {
	return &ExpirySweep{
		oracle: oracleSvc,
		log:    log.With().Str("job", "expiry_sweep").Logger(),
	}
}

// Name implements scheduler.Job
func (j *ExpirySweep) Name() string {
	return "market_expiry_sweep"
}

// Run implements scheduler.Job
func (j *ExpirySweep) Run() error {
	expired := j.oracle.GetExpiredUnresolved()
	for _, market := range expired {
		j.log.Warn().
			Str("outcome_id", market.OutcomeID).
			Str("title", market.Title).
			Time("expired_at", market.ExpiresAt).
			Msg("Market expired without resolution")
	}
	if len(expired) == 0 {
		j.log.Debug().Msg("No expired markets")
	}
	return nil
}
