package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	domsvc "AgriCast/internal/domain/service"
	pkgkafka "AgriCast/pkg/kafka"
	xutil "AgriCast/pkg/util"

	"github.com/shopspring/decimal"
)

// ObservationProcessor accepts a batch of decoded observations.
type ObservationProcessor interface {
	Process(ctx context.Context, obs []models.Observation) error
}

// PriceIngestHandler consumes market price messages and forwards them for storage.
type PriceIngestHandler struct {
	topic   string
	proc    ObservationProcessor
	metrics domrepo.Metrics
}

func NewPriceIngestHandler(topic string, proc ObservationProcessor, metrics domrepo.Metrics) *PriceIngestHandler {
	return &PriceIngestHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *PriceIngestHandler) Topic() string { return h.topic }

// incoming message schema: {product, city, date, price} or an array of them
type priceMessage struct {
	Product string          `json:"product"`
	City    string          `json:"city"`
	Date    string          `json:"date"`
	Price   decimal.Decimal `json:"price"`
}

func (h *PriceIngestHandler) Handle(ctx context.Context, b []byte) error {
	obs, err := decodePrices(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}

	start := time.Now()
	err = h.proc.Process(ctx, obs)
	h.metrics.RecordLatency("ingest_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		if errors.Is(err, models.ErrInvalidArgument) {
			return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
		}
		return err
	}
	return nil
}

func decodePrices(b []byte) ([]models.Observation, error) {
	var msgs []priceMessage
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, err
		}
	} else {
		var m priceMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		msgs = []priceMessage{m}
	}

	out := make([]models.Observation, 0, len(msgs))
	for i, m := range msgs {
		d, ok := xutil.ParseDay(m.Date)
		if !ok {
			return nil, fmt.Errorf("message %d: bad date %q", i, m.Date)
		}
		out = append(out, models.Observation{
			Product: m.Product,
			City:    m.City,
			Date:    d,
			Price:   m.Price.InexactFloat64(),
		})
	}
	return out, nil
}

// ObservationNotifier returns a callback that reports stored observations to the registry
// and drops the cached product list when a batch may have introduced a new product.
func ObservationNotifier(registry domsvc.ModelRegistry, products *ProductsUseCase) func([]models.Observation) {
	return func(obs []models.Observation) {
		counts := make(map[models.SeriesKey]int)
		for _, o := range obs {
			counts[models.SeriesKey{Product: o.Product, City: o.City}]++
		}
		for k, n := range counts {
			registry.NoteObservations(k, n)
		}
		if products != nil {
			_ = products.Invalidate(context.Background())
		}
	}
}

var _ pkgkafka.MessageHandler = (*PriceIngestHandler)(nil)
