package fred

import (
	"context"

	"github.com/i474232898/fred-data-proxy/internal/logger"
)

// Refresher serves series metadata fresh from upstream and keeps the
// cached copy from ever moving backwards in time.
type Refresher struct {
	store    Store
	upstream Upstream
	log      *logger.Entry
}

// NewRefresher creates a Refresher.
func NewRefresher(store Store, upstream Upstream) *Refresher {
	return &Refresher{
		store:    store,
		upstream: upstream,
		log:      logger.GetLogger().WithComponent("refresher"),
	}
}

// isNewer reports whether fetched should replace stored.
func isNewer(stored, fetched SeriesMetadata) bool {
	return stored.LastUpdated.Before(fetched.LastUpdated.Time)
}

// Refresh fetches the metadata of seriesID and writes it through when nothing
// is stored or the stored copy is strictly older. Storage failures are logged;
// the fetched metadata is returned either way.
func (r *Refresher) Refresh(ctx context.Context, seriesID string) (SeriesMetadata, error) {
	fetched, err := r.upstream.FetchSeries(ctx, seriesID)
	if err != nil {
		return SeriesMetadata{}, err
	}

	entry := r.log.WithFields(logger.Fields{"series_id": seriesID})

	stored, ok, err := r.store.GetSeries(ctx, seriesID)
	if err != nil {
		entry.WithError(err).Error("failed to read cached series metadata")
		return fetched, nil
	}
	if ok && !isNewer(stored, fetched) {
		return fetched, nil
	}

	if err := r.store.PutSeries(ctx, fetched); err != nil {
		entry.WithError(err).Error("failed to cache series metadata")
		return fetched, nil
	}
	entry.WithFields(logger.Fields{"last_updated": fetched.LastUpdated.String()}).Debug("series metadata cached")
	return fetched, nil
}
