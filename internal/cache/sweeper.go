package cache

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidInterval = errors.New("sweep interval must be positive")
	ErrEmptyName       = errors.New("cache name is required")
	ErrNilCache        = errors.New("cache is required")
)

// Expirer is anything that can drop its stale entries.
type Expirer interface {
	ClearExpired() int
}

// Sweeper periodically clears expired entries from registered caches. The
// owning service decides when it starts and stops.
type Sweeper struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	stopOnce  sync.Once
	stopErr   error
}

// NewSweeper creates a stopped sweeper that runs every interval.
func NewSweeper(interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("Cache sweep panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &Sweeper{scheduler: sched, interval: interval}, nil
}

// Register adds a cache to be swept under the given job name.
func (s *Sweeper) Register(name string, c Expirer) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if isNil(c) {
		return ErrNilCache
	}
	jobLogger := log.With().Str("job_name", name).Dur("interval", s.interval).Logger()

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if removed := c.ClearExpired(); removed > 0 {
				jobLogger.Debug().Int("removed", removed).Msg("Cleared expired cache entries")
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to register cache sweep")
		return err
	}
	jobLogger.Info().Msg("Cache sweep registered")
	return nil
}

// isNil also catches a nil pointer wrapped in the interface, such as a nil
// *Cache.
func isNil(c Expirer) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (s *Sweeper) Start() {
	log.Info().Dur("interval", s.interval).Msg("Cache sweeper starting")
	s.scheduler.Start()
}

// Stop shuts down the sweeper. It is safe to call more than once.
func (s *Sweeper) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("Cache sweeper stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}
