package fred

import (
	"context"
	"fmt"

	"github.com/i474232898/fred-data-proxy/internal/logger"
)

// Service is the entry point used by the HTTP layer and the scheduler.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	upstream   Upstream
	reconciler *Reconciler
	refresher  *Refresher
	log        *logger.Entry
}

// NewService creates a new Service.
func NewService(store Store, upstream Upstream) *Service {
	return &Service{
		upstream:   upstream,
		reconciler: NewReconciler(store, upstream),
		refresher:  NewRefresher(store, upstream),
		log:        logger.GetLogger().WithComponent("service"),
	}
}

// Observations answers an observations query. Realtime queries go straight
// to upstream and never touch the cache.
func (s *Service) Observations(ctx context.Context, q RequestedRange) ([]Observation, error) {
	if q.IsRealtime() {
		rows, err := s.upstream.FetchObservations(ctx, q)
		if err != nil {
			return nil, err
		}
		return rows, nil
	}

	res, err := s.reconciler.Reconcile(ctx, q.SeriesID, q.ObservationStart, q.ObservationEnd)
	if err != nil {
		return nil, err
	}
	return res.Observations, nil
}

// Series returns the current metadata of a series.
func (s *Service) Series(ctx context.Context, seriesID string) (SeriesMetadata, error) {
	return s.refresher.Refresh(ctx, seriesID)
}

// Warm refreshes a series' metadata and reconciles its full published
// observation window, so newly released points land in the cache.
func (s *Service) Warm(ctx context.Context, seriesID string) error {
	meta, err := s.refresher.Refresh(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", seriesID, err)
	}

	res, err := s.reconciler.Reconcile(ctx, seriesID, meta.ObservationStart, meta.ObservationEnd)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", seriesID, err)
	}

	s.log.WithFields(logger.Fields{
		"series_id": seriesID,
		"decision":  res.Decision.String(),
		"rows":      len(res.Observations),
	}).Info("series warmed")
	return nil
}
