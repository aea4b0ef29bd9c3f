package forecast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	_, ok := Unavailable{}.Predict(context.Background(), []float64{1, 2, 3})
	assert.False(t, ok)
}

func TestLinearTrend_PerfectLine(t *testing.T) {
	p := NewLinearTrend(10, 3)

	f, ok := p.Predict(context.Background(), []float64{10, 20, 30, 40})
	require.True(t, ok)
	assert.InDelta(t, 70, f.Value, 1e-9)
	assert.InDelta(t, 1, f.Confidence, 1e-9)
	assert.Equal(t, 3, f.Steps)
}

func TestLinearTrend_FlatSeries(t *testing.T) {
	p := NewLinearTrend(10, 3)

	f, ok := p.Predict(context.Background(), []float64{50, 50, 50})
	require.True(t, ok)
	assert.InDelta(t, 50, f.Value, 1e-9)
	assert.InDelta(t, 1, f.Confidence, 1e-9)
}

func TestLinearTrend_NoisySeriesHasLowConfidence(t *testing.T) {
	p := NewLinearTrend(10, 3)

	f, ok := p.Predict(context.Background(), []float64{10, 90, 15, 85, 12, 88})
	require.True(t, ok)
	assert.Less(t, f.Confidence, 0.7)
}

func TestLinearTrend_UsesWindowTail(t *testing.T) {
	p := NewLinearTrend(3, 1)

	// Only the last three points (rising by 10) matter.
	f, ok := p.Predict(context.Background(), []float64{100, 0, 10, 20, 30})
	require.True(t, ok)
	assert.InDelta(t, 40, f.Value, 1e-9)
}

func TestLinearTrend_NeverNegative(t *testing.T) {
	p := NewLinearTrend(10, 10)

	f, ok := p.Predict(context.Background(), []float64{30, 20, 10})
	require.True(t, ok)
	assert.Zero(t, f.Value)
}

func TestLinearTrend_TooShort(t *testing.T) {
	p := NewLinearTrend(10, 3)
	_, ok := p.Predict(context.Background(), []float64{1, 2})
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = p.Predict(ctx, []float64{1, 2, 3})
	assert.False(t, ok)
}
