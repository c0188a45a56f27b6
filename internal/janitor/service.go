package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// PruneInterval is the time between pruning cycles.
	PruneInterval = 6 * time.Hour

	// LogRetention is how long generation log entries are kept.
	LogRetention = 90 * 24 * time.Hour
)

// Pruner removes expired rows from the generation store.
type Pruner interface {
	PruneCache(olderThan time.Duration) (int64, error)
	PruneLog(olderThan time.Duration) (int64, error)
}

// Service expires cached generations after the cache TTL and trims the
// generation log.
type Service struct {
	store        Pruner
	cacheTTL     time.Duration
	logRetention time.Duration
	interval     time.Duration
}

// NewService creates a janitor for store. A zero cacheTTL keeps cached
// generations forever.
func NewService(store Pruner, cacheTTL time.Duration) *Service {
	return &Service{
		store:        store,
		cacheTTL:     cacheTTL,
		logRetention: LogRetention,
		interval:     PruneInterval,
	}
}

// Run prunes once immediately and then on every interval. It blocks until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Dur("cacheTTL", s.cacheTTL).Msg("starting janitor service")

	s.prune()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("janitor service stopped")
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Service) prune() {
	if s.cacheTTL > 0 {
		n, err := s.store.PruneCache(s.cacheTTL)
		if err != nil {
			log.Error().Err(err).Msg("failed to prune generation cache")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("pruned expired cached generations")
		}
	}

	n, err := s.store.PruneLog(s.logRetention)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune generation log")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("pruned old generation log entries")
	}
}
