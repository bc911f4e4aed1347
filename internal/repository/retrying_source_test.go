package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"AgriCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	errs  []error
	calls int
}

func (s *scriptedSource) FetchSeries(_ context.Context, product, city string) ([]models.Observation, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return []models.Observation{{Product: product, City: city, Price: 1}}, nil
}

func TestRetryingSourceRetriesUpstreamFailures(t *testing.T) {
	next := &scriptedSource{errs: []error{
		models.UpstreamFetchError(errors.New("reset"), "fetch"),
		models.UpstreamFetchError(errors.New("reset"), "fetch"),
	}}
	src := NewRetryingSource(next, 3, time.Millisecond, nil)

	obs, err := src.FetchSeries(context.Background(), "Potatoes", "Nanjing")
	require.NoError(t, err)
	assert.Len(t, obs, 1)
	assert.Equal(t, 3, next.calls)
}

func TestRetryingSourceGivesUp(t *testing.T) {
	upstream := models.UpstreamFetchError(errors.New("down"), "fetch")
	next := &scriptedSource{errs: []error{upstream, upstream, upstream}}
	src := NewRetryingSource(next, 2, time.Millisecond, nil)

	_, err := src.FetchSeries(context.Background(), "Potatoes", "Nanjing")
	assert.True(t, errors.Is(err, models.ErrUpstreamFetch))
	assert.Equal(t, 2, next.calls)
}

func TestRetryingSourceDoesNotRetryNotFound(t *testing.T) {
	next := &scriptedSource{errs: []error{models.NotFoundError("product Apples not found")}}
	src := NewRetryingSource(next, 5, time.Millisecond, nil)

	_, err := src.FetchSeries(context.Background(), "Apples", "Nanjing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, 1, next.calls)
}

func TestRetryingSourceHonorsCancellation(t *testing.T) {
	upstream := models.UpstreamFetchError(errors.New("down"), "fetch")
	next := &scriptedSource{errs: []error{upstream, upstream}}
	src := NewRetryingSource(next, 2, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.FetchSeries(ctx, "Potatoes", "Nanjing")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, next.calls)
}
