package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("train: %w", InsufficientDataError("only %d points", 3))

	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindInsufficientData, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestUpstreamFetchErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := UpstreamFetchError(cause, "fetch %s", "Potatoes_Nanjing")

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrUpstreamFetch)
	assert.Equal(t, "fetch Potatoes_Nanjing: connection refused", err.Error())
}

func TestDailySeriesTailCopies(t *testing.T) {
	s := DailySeries{{AvgPrice: 1}, {AvgPrice: 2}, {AvgPrice: 3}}

	tail := s.Tail(2)
	tail[0].AvgPrice = 99

	assert.Equal(t, []float64{1, 2, 3}, s.Prices())
	assert.Len(t, s.Tail(10), 3)
	assert.Empty(t, s.Tail(0))
}
