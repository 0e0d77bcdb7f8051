package fred

import (
	"context"
	"time"

	"github.com/i474232898/fred-data-proxy/internal/logger"
)

// Decision is how a reconciliation satisfied a request.
type Decision int

const (
	// DecisionFullMiss: nothing cached in range; one upstream call for the whole range.
	DecisionFullMiss Decision = iota + 1
	// DecisionExactHit: the cached rows reach both requested bounds; no upstream call.
	DecisionExactHit
	// DecisionGapFill: boundary gaps were probed and upstream had nothing for them.
	DecisionGapFill
	// DecisionRefetch: a gap probe returned rows, so the whole range was fetched again.
	DecisionRefetch
)

func (d Decision) String() string {
	switch d {
	case DecisionFullMiss:
		return "full_miss"
	case DecisionExactHit:
		return "exact_hit"
	case DecisionGapFill:
		return "gap_fill"
	case DecisionRefetch:
		return "refetch"
	default:
		return "unknown"
	}
}

// interval is an inclusive date range; zero bounds are open.
type interval struct {
	start Date
	end   Date
}

// Reconciliation is the outcome of one Reconcile call.
type Reconciliation struct {
	Decision      Decision
	Observations  []Observation
	UpstreamCalls int
}

// Reconciler answers observation range queries from the cache, fetching only
// what the cache cannot prove it has.
type Reconciler struct {
	store    Store
	upstream Upstream
	log      *logger.Entry
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, upstream Upstream) *Reconciler {
	return &Reconciler{
		store:    store,
		upstream: upstream,
		log:      logger.GetLogger().WithComponent("reconciler"),
	}
}

// boundaryGaps returns the uncovered intervals on each side of cached, which
// must be non-empty and restricted to [start, end]. A gap exists only on a
// side whose bound is specified.
func boundaryGaps(cached []Observation, start, end Date) (left, right *interval) {
	first := cached[0].Date
	last := cached[len(cached)-1].Date

	if !start.IsZero() && first.After(start) {
		left = &interval{start: start, end: first.AddDays(-1)}
	}
	if !end.IsZero() && last.Before(end) {
		right = &interval{start: last.AddDays(1), end: end}
	}
	return left, right
}

// Reconcile returns every observation of seriesID in [start, end] sorted by
// date and leaves newly fetched rows in the store. Any upstream or storage
// failure aborts the call; gap rows are never written on their own.
func (r *Reconciler) Reconcile(ctx context.Context, seriesID string, start, end Date) (Reconciliation, error) {
	began := time.Now()
	var res Reconciliation

	cached, err := r.store.GetObservations(ctx, seriesID, start, end)
	if err != nil {
		return Reconciliation{}, err
	}

	res.Decision, res.Observations, err = r.classifyAndFetch(ctx, &res, seriesID, start, end, cached)
	if err != nil {
		return Reconciliation{}, err
	}

	if res.Decision == DecisionFullMiss || res.Decision == DecisionRefetch {
		if len(res.Observations) > 0 {
			if err := r.store.PutObservations(ctx, seriesID, res.Observations); err != nil {
				return Reconciliation{}, err
			}
		}
	}

	SortObservations(res.Observations)

	logger.LogPerformanceEntry(r.log, "reconcile", time.Since(began), logger.Fields{
		"series_id":      seriesID,
		"decision":       res.Decision.String(),
		"cached_rows":    len(cached),
		"returned_rows":  len(res.Observations),
		"upstream_calls": res.UpstreamCalls,
	})
	return res, nil
}

func (r *Reconciler) classifyAndFetch(
	ctx context.Context,
	res *Reconciliation,
	seriesID string,
	start, end Date,
	cached []Observation,
) (Decision, []Observation, error) {
	if len(cached) == 0 {
		rows, err := r.fetch(ctx, res, seriesID, interval{start: start, end: end})
		return DecisionFullMiss, rows, err
	}

	left, right := boundaryGaps(cached, start, end)
	if left == nil && right == nil {
		return DecisionExactHit, cached, nil
	}

	incomplete := false
	for _, gap := range []*interval{left, right} {
		if gap == nil {
			continue
		}
		rows, err := r.fetch(ctx, res, seriesID, *gap)
		if err != nil {
			return 0, nil, err
		}
		if len(rows) > 0 {
			incomplete = true
		}
	}

	if !incomplete {
		return DecisionGapFill, cached, nil
	}

	rows, err := r.fetch(ctx, res, seriesID, interval{start: start, end: end})
	return DecisionRefetch, rows, err
}

func (r *Reconciler) fetch(ctx context.Context, res *Reconciliation, seriesID string, iv interval) ([]Observation, error) {
	res.UpstreamCalls++
	r.log.WithFields(logger.Fields{
		"series_id": seriesID,
		"start":     iv.start.String(),
		"end":       iv.end.String(),
	}).Debug("fetching from upstream")

	return r.upstream.FetchObservations(ctx, RequestedRange{
		SeriesID:         seriesID,
		ObservationStart: iv.start,
		ObservationEnd:   iv.end,
	})
}
