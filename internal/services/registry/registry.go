package registry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	domsvc "AgriCast/internal/domain/service"
	"AgriCast/internal/services/features"
	"AgriCast/internal/services/model"
	applogger "AgriCast/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultModelVersion labels models produced by this registry.
const DefaultModelVersion = "GBRT-v1.0"

// Option configures Registry.
type Option func(*Config)

// Config holds registry configuration.
type Config struct {
	MaxEntries               int
	MaxAge                   time.Duration
	RetrainAfterObservations int
	ModelVersion             string
	Logger                   *applogger.Logger
	Metrics                  domrepo.Metrics
	Now                      func() time.Time
}

// WithMaxEntries bounds the number of resident models; 0 or less means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Config) {
		c.MaxEntries = n
	}
}

// WithMaxAge retrains entries older than d on their next request; 0 disables.
func WithMaxAge(d time.Duration) Option {
	return func(c *Config) {
		c.MaxAge = d
	}
}

// WithRetrainAfterObservations retrains once n new observations were noted for a key; 0 disables.
func WithRetrainAfterObservations(n int) Option {
	return func(c *Config) {
		c.RetrainAfterObservations = n
	}
}

// WithModelVersion sets the version label stamped on entries.
func WithModelVersion(v string) Option {
	return func(c *Config) {
		if v != "" {
			c.ModelVersion = v
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// Registry caches one trained model per (product, city).
// Entries are immutable; a retrain replaces the entry rather than mutating it.
type Registry struct {
	cfg     *Config
	trainer *model.Trainer
	cache   *lru.Cache[models.SeriesKey, *domsvc.Entry]
	group   singleflight.Group

	mu      sync.Mutex
	pending map[models.SeriesKey]int
}

// New creates a registry that trains with trainer on cache misses.
func New(trainer *model.Trainer, opts ...Option) (*Registry, error) {
	cfg := &Config{
		MaxEntries:   256,
		ModelVersion: DefaultModelVersion,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	size := cfg.MaxEntries
	if size <= 0 {
		size = math.MaxInt32
	}

	r := &Registry{
		cfg:     cfg,
		trainer: trainer,
		pending: make(map[models.SeriesKey]int),
	}
	cache, err := lru.NewWithEvict[models.SeriesKey, *domsvc.Entry](size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("registry cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// GetOrTrain returns the resident entry for key, or fetches, trains and stores a new one.
// Concurrent callers for the same key share a single training run.
func (r *Registry) GetOrTrain(ctx context.Context, key models.SeriesKey, fetch domsvc.FetchFunc) (*domsvc.Entry, error) {
	if e, ok := r.fresh(key); ok {
		r.record("hit")
		return e, nil
	}

	// training is not abandoned when the first caller goes away
	trainCtx := context.WithoutCancel(ctx)
	v, err, shared := r.group.Do(flightKey(key), func() (interface{}, error) {
		if e, ok := r.fresh(key); ok {
			return e, nil
		}
		r.record("miss")
		return r.train(trainCtx, key, fetch)
	})
	if err != nil {
		return nil, err
	}
	if shared && r.cfg.Logger != nil {
		r.cfg.Logger.Debug("registry shared training result",
			applogger.String("product", key.Product),
			applogger.String("city", key.City),
		)
	}
	return v.(*domsvc.Entry), nil
}

// Get returns the resident entry without training or freshness checks.
func (r *Registry) Get(key models.SeriesKey) (*domsvc.Entry, bool) {
	return r.cache.Peek(key)
}

// Entries lists resident entries from least to most recently used.
func (r *Registry) Entries() []*domsvc.Entry {
	return r.cache.Values()
}

// Len returns the number of resident entries.
func (r *Registry) Len() int { return r.cache.Len() }

// NoteObservations counts newly ingested observations toward the retrain threshold.
func (r *Registry) NoteObservations(key models.SeriesKey, n int) {
	if n <= 0 || r.cfg.RetrainAfterObservations <= 0 {
		return
	}
	r.mu.Lock()
	r.pending[key] += n
	r.mu.Unlock()
}

// Invalidate drops the entry for key so the next request retrains.
func (r *Registry) Invalidate(key models.SeriesKey) bool {
	return r.cache.Remove(key)
}

func (r *Registry) fresh(key models.SeriesKey) (*domsvc.Entry, bool) {
	e, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	if r.cfg.MaxAge > 0 && r.cfg.Now().Sub(e.TrainedAt) > r.cfg.MaxAge {
		r.record("stale")
		return nil, false
	}
	if r.cfg.RetrainAfterObservations > 0 {
		r.mu.Lock()
		n := r.pending[key]
		r.mu.Unlock()
		if n >= r.cfg.RetrainAfterObservations {
			r.record("stale")
			return nil, false
		}
	}
	return e, true
}

func (r *Registry) train(ctx context.Context, key models.SeriesKey, fetch domsvc.FetchFunc) (*domsvc.Entry, error) {
	start := r.cfg.Now()

	// observations noted while fetching count toward the next retrain
	r.mu.Lock()
	seen := r.pending[key]
	r.mu.Unlock()

	obs, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	series, err := features.Normalize(obs)
	if err != nil {
		return nil, err
	}
	rows, err := features.BuildTrainingSet(series)
	if err != nil {
		return nil, err
	}
	x, y := features.Matrix(rows)
	m, err := r.trainer.Fit(x, y, features.Schema)
	if err != nil {
		return nil, err
	}

	entry := &domsvc.Entry{
		Key:          key,
		Model:        m,
		Schema:       m.Schema(),
		SeedWindow:   series.Tail(features.SeedWindow),
		TrainedAt:    r.cfg.Now(),
		ModelVersion: r.cfg.ModelVersion,
		TrainingRows: len(rows),
	}

	r.cache.Add(key, entry)
	r.mu.Lock()
	if left := r.pending[key] - seen; left > 0 {
		r.pending[key] = left
	} else {
		delete(r.pending, key)
	}
	r.mu.Unlock()

	elapsed := r.cfg.Now().Sub(start)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordTraining(key.Product, len(rows), elapsed.Seconds())
		r.cfg.Metrics.RecordRegistry("trained", r.cache.Len())
	}
	if r.cfg.Logger != nil {
		fields := []applogger.Field{
			applogger.String("product", key.Product),
			applogger.String("city", key.City),
			applogger.Int("observations", len(obs)),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", elapsed),
		}
		if len(rows) < features.MaxLag {
			r.cfg.Logger.Warn("registry trained on very few rows", fields...)
		} else {
			r.cfg.Logger.Info("registry trained model", fields...)
		}
	}
	return entry, nil
}

func (r *Registry) onEvict(key models.SeriesKey, _ *domsvc.Entry) {
	r.mu.Lock()
	delete(r.pending, key)
	r.mu.Unlock()
	// called by the cache itself, so the size is not read here
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordRegistry("evict", -1)
	}
}

func (r *Registry) record(event string) {
	if r.cfg.Metrics == nil {
		return
	}
	size := 0
	if r.cache != nil {
		size = r.cache.Len()
	}
	r.cfg.Metrics.RecordRegistry(event, size)
}

func flightKey(k models.SeriesKey) string {
	return k.Product + "\x00" + k.City
}

var _ domsvc.ModelRegistry = (*Registry)(nil)
