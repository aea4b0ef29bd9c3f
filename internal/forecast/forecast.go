// Package forecast predicts where a metric is heading from its rolling
// history.
package forecast

import (
	"context"
	"math"
)

// Forecast is a predicted metric value Steps polling intervals ahead.
type Forecast struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	Steps      int     `json:"steps"`
}

// Provider predicts the next value of a series, oldest point first.
// It returns false when it has nothing to say.
type Provider interface {
	Predict(ctx context.Context, history []float64) (Forecast, bool)
}

// Unavailable is the provider used when forecasting is disabled.
type Unavailable struct{}

func (Unavailable) Predict(context.Context, []float64) (Forecast, bool) {
	return Forecast{}, false
}

// minPoints is the shortest history LinearTrend fits a line through.
const minPoints = 3

// LinearTrend fits a least-squares line through the last Window points and
// extrapolates it Steps intervals ahead. Confidence is the fit's R².
type LinearTrend struct {
	Window int
	Steps  int
}

// NewLinearTrend creates a LinearTrend provider.
func NewLinearTrend(window, steps int) *LinearTrend {
	if steps <= 0 {
		steps = 3
	}
	return &LinearTrend{Window: window, Steps: steps}
}

func (p *LinearTrend) Predict(ctx context.Context, history []float64) (Forecast, bool) {
	if ctx.Err() != nil {
		return Forecast{}, false
	}
	if p.Window > 0 && len(history) > p.Window {
		history = history[len(history)-p.Window:]
	}
	n := len(history)
	if n < minPoints {
		return Forecast{}, false
	}

	var sumX, sumY float64
	for i, y := range history {
		sumX += float64(i)
		sumY += y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy, syy float64
	for i, y := range history {
		dx := float64(i) - meanX
		dy := y - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	confidence := 1.0
	if syy > 0 {
		confidence = (sxy * sxy) / (sxx * syy)
	}

	value := intercept + slope*float64(n-1+p.Steps)
	if value < 0 {
		value = 0
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Forecast{}, false
	}

	return Forecast{Value: value, Confidence: confidence, Steps: p.Steps}, true
}
