package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"AgriCast/internal/domain/models"
	domsvc "AgriCast/internal/domain/service"
	"AgriCast/internal/services/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	potatoes = models.SeriesKey{Product: "Potatoes", City: "Nanjing"}
	cabbage  = models.SeriesKey{Product: "Cabbage", City: "Nanjing"}
)

func observations(n int) []models.Observation {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, n)
	for i := range obs {
		obs[i] = models.Observation{Date: start.AddDate(0, 0, i), Price: 10 + float64(i%4)*0.25}
	}
	return obs
}

func countingFetch(n int, calls *int32) domsvc.FetchFunc {
	return func(context.Context) ([]models.Observation, error) {
		atomic.AddInt32(calls, 1)
		return observations(n), nil
	}
}

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	trainer := model.NewTrainer(model.WithParams(model.Params{NumTrees: 10, MaxDepth: 3, LearningRate: 0.1, Lambda: 1, MinChildWeight: 1, Subsample: 1, Seed: 42}))
	r, err := New(trainer, opts...)
	require.NoError(t, err)
	return r
}

func TestGetOrTrainTrainsOnce(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	a, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(30, &calls))
	require.NoError(t, err)
	b, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(30, &calls))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 27, a.TrainingRows)
	assert.Len(t, a.SeedWindow, 14)
	assert.Equal(t, time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), a.SeedWindow[13].Date)
	assert.Equal(t, DefaultModelVersion, a.ModelVersion)
}

func TestConcurrentSameKeyTrainsOnce(t *testing.T) {
	r := newRegistry(t)
	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]models.Observation, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return observations(20), nil
	}

	var wg sync.WaitGroup
	entries := make([]*domsvc.Entry, 16)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := r.GetOrTrain(context.Background(), potatoes, fetch)
			assert.NoError(t, err)
			entries[i] = e
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
}

func TestDifferentKeysProceedIndependently(t *testing.T) {
	r := newRegistry(t)
	release := make(chan struct{})
	blocked := func(context.Context) ([]models.Observation, error) {
		<-release
		return observations(20), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.GetOrTrain(context.Background(), potatoes, blocked)
		done <- err
	}()

	var calls int32
	_, err := r.GetOrTrain(context.Background(), cabbage, countingFetch(20, &calls))
	require.NoError(t, err)
	_, ok := r.Get(potatoes)
	assert.False(t, ok)

	close(release)
	require.NoError(t, <-done)
	_, ok = r.Get(potatoes)
	assert.True(t, ok)
}

func TestErrorsAreNotCached(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	_, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(3, &calls))
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(3, &calls))
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
	assert.EqualValues(t, 2, calls)
	assert.Equal(t, 0, r.Len())

	_, err = r.GetOrTrain(context.Background(), cabbage, func(context.Context) ([]models.Observation, error) {
		return nil, models.NotFoundError("no data for Cabbage in Nanjing")
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	r := newRegistry(t, WithMaxEntries(1))
	var calls int32

	_, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	_, err = r.GetOrTrain(context.Background(), cabbage, countingFetch(10, &calls))
	require.NoError(t, err)

	_, ok := r.Get(potatoes)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestMaxAgeRetrains(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	r := newRegistry(t, WithMaxAge(time.Hour), WithClock(func() time.Time { return now }))
	var calls int32

	first, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)

	now = now.Add(time.Hour)
	second, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(12, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
	assert.NotSame(t, first, second)
	assert.Equal(t, 7, first.TrainingRows)
	assert.Equal(t, 9, second.TrainingRows)
}

func TestRetrainAfterObservations(t *testing.T) {
	r := newRegistry(t, WithRetrainAfterObservations(3))
	var calls int32

	_, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	r.NoteObservations(potatoes, 2)
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)

	r.NoteObservations(potatoes, 1)
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(11, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)

	// counter resets after retraining
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(11, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestObservationsNotedDuringTrainingAreKept(t *testing.T) {
	r := newRegistry(t, WithRetrainAfterObservations(2))
	var calls int32

	r.NoteObservations(potatoes, 1)
	_, err := r.GetOrTrain(context.Background(), potatoes, func(context.Context) ([]models.Observation, error) {
		atomic.AddInt32(&calls, 1)
		// ingest lands while the series is being read
		r.NoteObservations(potatoes, 2)
		return observations(10), nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)

	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(12, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)

	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(12, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestObservationsIgnoredByDefault(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	_, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	r.NoteObservations(potatoes, 1000)
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestInvalidateForcesRetrain(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	_, err := r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	assert.True(t, r.Invalidate(potatoes))
	_, err = r.GetOrTrain(context.Background(), potatoes, countingFetch(10, &calls))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
	assert.Len(t, r.Entries(), 1)
}

func TestCanceledCallerStillTrains(t *testing.T) {
	r := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := r.GetOrTrain(ctx, potatoes, func(ctx context.Context) ([]models.Observation, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return observations(10), nil
	})
	require.NoError(t, err)
	assert.NotNil(t, e)
}
