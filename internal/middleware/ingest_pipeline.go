package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	applogger "AgriCast/pkg/logger"

	"golang.org/x/time/rate"
)

// IngestPipeline sits between the ingest consumer and the observation store.
// It validates, paces writes per series, and buffers batches while the store is unavailable.
type IngestPipeline struct {
	writer   domrepo.ObservationWriter
	metrics  domrepo.Metrics
	l        *applogger.Logger
	maxRPS   float64
	burst    int
	bufSize  int
	bufCh    chan []models.Observation
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	limiters map[models.SeriesKey]*rate.Limiter
	onStored func([]models.Observation)
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS limits store writes per series per second; 0 disables pacing.
func WithMaxRPS(rps float64, burst int) PipelineOption {
	return func(p *IngestPipeline) {
		if rps >= 0 {
			p.maxRPS = rps
		}
		if burst > 0 {
			p.burst = burst
		}
	}
}

// WithBufferSize sets how many batches are held while the store is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithOnStored is called with every batch once it reached the store, immediately or after a flush.
func WithOnStored(fn func([]models.Observation)) PipelineOption {
	return func(p *IngestPipeline) { p.onStored = fn }
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *IngestPipeline) { p.l = l }
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(writer domrepo.ObservationWriter, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		writer:   writer,
		metrics:  metrics,
		burst:    1,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		limiters: make(map[models.SeriesKey]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan []models.Observation, p.bufSize)
	return p
}

// Start launches background flushing of buffered batches.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case batch := <-p.bufCh:
				if err := p.writer.StoreObservations(ctx, batch); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- batch:
					default:
						p.drop(batch)
					}
					continue
				}
				backoff = 50 * time.Millisecond
				p.stored(batch)
			}
		}
	}()
}

// Stop stops background flushing. Batches still buffered are dropped and logged.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh

	if n := len(p.bufCh); n > 0 && p.l != nil {
		p.l.Warn("ingest pipeline stopped with buffered batches", applogger.Int("batches", n))
	}
}

// Buffered returns the number of batches waiting for the store.
func (p *IngestPipeline) Buffered() int { return len(p.bufCh) }

// Process validates obs, waits for the per-series write budget and stores the batch.
// A store failure buffers the batch and returns nil; only a full buffer is reported.
func (p *IngestPipeline) Process(ctx context.Context, obs []models.Observation) error {
	start := time.Now()
	if len(obs) == 0 {
		return nil
	}
	for i := range obs {
		if err := validateObservation(obs[i]); err != nil {
			p.metrics.RecordError("pipeline_validate")
			return models.InvalidArgumentError("observation %d: %v", i, err)
		}
	}

	for _, key := range seriesKeys(obs) {
		if err := p.limiter(key).Wait(ctx); err != nil {
			return fmt.Errorf("pipeline throttle: %w", err)
		}
	}

	if err := p.writer.StoreObservations(ctx, obs); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- obs:
			if p.l != nil {
				p.l.Warn("ingest store failed, batch buffered",
					applogger.Int("rows", len(obs)),
					applogger.Int("buffered", len(p.bufCh)),
					applogger.Error(err),
				)
			}
			return nil
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			return fmt.Errorf("pipeline downstream: %w", err)
		}
	}
	p.stored(obs)
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *IngestPipeline) stored(obs []models.Observation) {
	if p.onStored != nil {
		p.onStored(obs)
	}
}

func (p *IngestPipeline) drop(obs []models.Observation) {
	p.metrics.RecordError("pipeline_buffer_drop")
	if p.l != nil {
		p.l.Error("ingest batch dropped", applogger.Int("rows", len(obs)))
	}
}

func (p *IngestPipeline) limiter(key models.SeriesKey) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[key]
	if !ok {
		limit := rate.Inf
		if p.maxRPS > 0 {
			limit = rate.Limit(p.maxRPS)
		}
		lim = rate.NewLimiter(limit, p.burst)
		p.limiters[key] = lim
	}
	return lim
}

func validateObservation(o models.Observation) error {
	if o.Product == "" {
		return fmt.Errorf("product empty")
	}
	if o.City == "" {
		return fmt.Errorf("city empty")
	}
	if o.Date.IsZero() {
		return fmt.Errorf("date missing")
	}
	if math.IsNaN(o.Price) || math.IsInf(o.Price, 0) || o.Price <= 0 {
		return fmt.Errorf("price invalid: %v", o.Price)
	}
	return nil
}

// seriesKeys lists the distinct series of obs in first-seen order.
func seriesKeys(obs []models.Observation) []models.SeriesKey {
	var keys []models.SeriesKey
	seen := make(map[models.SeriesKey]bool)
	for _, o := range obs {
		k := models.SeriesKey{Product: o.Product, City: o.City}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
