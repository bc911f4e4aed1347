package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
}

func TestHookChainOrderAndPanics(t *testing.T) {
	var order []string
	mk := func(name string) HookFuncs {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}

	chain := NewHookChain(mk("a"), nil, mk("b"))
	ctx, _, data, err := chain.BeforeHandle(context.Background(), "prices", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))
	chain.AfterHandle(ctx, "prices", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)

	var notified error
	panicky := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { notified = err },
	}
	_, _, _, err = NewHookChain(panicky).BeforeHandle(context.Background(), "prices", kafka.Message{}, nil)
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, notified)
}

func TestProducerMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newProducerMetrics(reg)
	b := newProducerMetrics(reg)

	a.observe("agricast.predictions", "gzip", 120, 3, time.Millisecond, nil)
	b.observe("agricast.predictions", "gzip", 40, 1, time.Millisecond, errors.New("leader not available"))

	assert.Equal(t, 3.0, testutil.ToFloat64(a.msgs.WithLabelValues("agricast.predictions", "gzip", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.errs.WithLabelValues("agricast.predictions")))
	assert.Equal(t, 160.0, testutil.ToFloat64(a.bytes.WithLabelValues("agricast.predictions", "gzip")))
}

func TestEncodeValue(t *testing.T) {
	v, err := encodeValue(map[string]float64{"price": 11.3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":11.3}`, string(v))

	v, err = encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(v))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(WithConsumerRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)

	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Error(t, c.Start())
}
