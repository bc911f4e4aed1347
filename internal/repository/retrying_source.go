package repository

import (
	"context"
	"errors"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	applogger "AgriCast/pkg/logger"
)

// RetryingSource retries transient upstream failures of another source.
// NotFound and every other domain error are returned on the first attempt.
type RetryingSource struct {
	next     domrepo.SeriesSource
	attempts int
	backoff  time.Duration
	l        *applogger.Logger
}

// NewRetryingSource wraps next; attempts below 2 disable retrying.
func NewRetryingSource(next domrepo.SeriesSource, attempts int, backoff time.Duration, l *applogger.Logger) *RetryingSource {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &RetryingSource{next: next, attempts: attempts, backoff: backoff, l: l}
}

func (s *RetryingSource) FetchSeries(ctx context.Context, product, city string) ([]models.Observation, error) {
	var err error
	for i := 1; i <= s.attempts; i++ {
		var obs []models.Observation
		obs, err = s.next.FetchSeries(ctx, product, city)
		if err == nil {
			return obs, nil
		}
		if !errors.Is(err, models.ErrUpstreamFetch) || i == s.attempts {
			return nil, err
		}
		if s.l != nil {
			s.l.Warn("series fetch failed, retrying",
				applogger.String("product", product),
				applogger.String("city", city),
				applogger.Int("attempt", i),
				applogger.Error(err),
			)
		}
		select {
		case <-time.After(time.Duration(i) * s.backoff):
		case <-ctx.Done():
			return nil, models.UpstreamFetchError(ctx.Err(), "fetch %s in %s", product, city)
		}
	}
	return nil, err
}

var _ domrepo.SeriesSource = (*RetryingSource)(nil)
