package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/fred-data-proxy/internal/logger"
)

const (
	defaultInterval = 6 * time.Hour
	warmTimeout     = 2 * time.Minute
)

// Warmer brings one series' cached data up to date.
type Warmer interface {
	Warm(ctx context.Context, seriesID string) error
}

// Scheduler periodically warms the cache for configured series.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	series    []string
	interval  time.Duration
	log       *logger.Entry
}

// New creates a new Scheduler.
func New(series []string, interval time.Duration, warmer Warmer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		warmer:    warmer,
		series:    series,
		interval:  interval,
		log:       logger.GetLogger().WithComponent("scheduler"),
	}
}

// Start schedules the warm job, runs it once right away and starts the
// underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.series) == 0 {
		s.log.Info("no series configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = defaultInterval
	}

	_, err := s.scheduler.Every(interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	start := time.Now()
	s.log.WithFields(logger.Fields{"series": len(s.series)}).Info("running warm job")

	var wg sync.WaitGroup
	for _, id := range s.series {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
			defer cancel()

			if err := s.warmer.Warm(ctx, id); err != nil {
				s.log.WithFields(logger.Fields{"series_id": id}).WithError(err).Warn("warm failed")
			}
		}()
	}
	wg.Wait()
	logger.LogPerformanceEntry(s.log, "warm_job", time.Since(start), nil)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
