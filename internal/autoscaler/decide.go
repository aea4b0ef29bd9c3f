// Package autoscaler decides, per VNF type, whether to add or remove an
// instance, and serializes those actions so only one is in flight per type.
package autoscaler

import (
	"fmt"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/forecast"
	"github.com/sri0013/vnf-project/internal/policy"
)

// Decision is the outcome of one evaluation.
type Decision string

const (
	DecisionScaleOut Decision = "SCALE_OUT"
	DecisionScaleIn  Decision = "SCALE_IN"
	DecisionMaintain Decision = "MAINTAIN"
)

// Thresholds are the upper (scale out) and lower (scale in) limits.
type Thresholds struct {
	CPUUpper     float64
	CPULower     float64
	MemoryUpper  float64
	MemoryLower  float64
	LatencyUpper float64
	LatencyLower float64
}

// Upper returns the upper threshold for a metric.
func (t Thresholds) Upper(m domain.MetricName) float64 {
	switch m {
	case domain.MetricCPU:
		return t.CPUUpper
	case domain.MetricMemory:
		return t.MemoryUpper
	default:
		return t.LatencyUpper
	}
}

// Input is everything Decide looks at.
type Input struct {
	VNFType domain.VNFType
	// Aggregate is nil when no instance answered this cycle.
	Aggregate           *domain.AggregatedMetric
	Active              int
	Min                 int
	Max                 int
	Thresholds          Thresholds
	Forecasts           map[domain.MetricName]forecast.Forecast
	ConfidenceThreshold float64
	Recommendation      policy.Recommendation
}

// Result is a decision and the rule that produced it.
type Result struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Decide applies the scaling rules in order: restore the minimum, honour a
// policy recommendation for this type, scale out on a current or forecast
// upper breach, scale in when every metric is below its lower threshold.
func Decide(in Input) Result {
	if in.Active < in.Min {
		return Result{DecisionScaleOut, fmt.Sprintf("%d active below minimum %d", in.Active, in.Min)}
	}

	switch {
	case in.Recommendation.Applies(in.VNFType, policy.ActionAllocate):
		if in.Active < in.Max {
			return Result{DecisionScaleOut, "policy recommends allocate"}
		}
		return Result{DecisionMaintain, "policy recommends allocate but at maximum"}
	case in.Recommendation.Applies(in.VNFType, policy.ActionUninstall):
		if in.Active > in.Min {
			return Result{DecisionScaleIn, "policy recommends uninstall"}
		}
		return Result{DecisionMaintain, "policy recommends uninstall but at minimum"}
	}

	if in.Active < in.Max {
		if reason, ok := upperBreach(in); ok {
			return Result{DecisionScaleOut, reason}
		}
		if reason, ok := forecastBreach(in); ok {
			return Result{DecisionScaleOut, reason}
		}
	}

	if in.Active > in.Min && in.Aggregate != nil {
		a, th := in.Aggregate, in.Thresholds
		if a.CPUPct < th.CPULower && a.MemPct < th.MemoryLower && a.LatencyMs < th.LatencyLower {
			return Result{DecisionScaleIn, "all metrics below lower thresholds"}
		}
	}

	return Result{DecisionMaintain, "within thresholds"}
}

func upperBreach(in Input) (string, bool) {
	if in.Aggregate == nil {
		return "", false
	}
	for _, m := range domain.AllMetrics {
		v, limit := in.Aggregate.Value(m), in.Thresholds.Upper(m)
		if v > limit {
			return fmt.Sprintf("%s %.1f above %.1f", m, v, limit), true
		}
	}
	return "", false
}

func forecastBreach(in Input) (string, bool) {
	for _, m := range domain.AllMetrics {
		f, ok := in.Forecasts[m]
		if !ok || f.Confidence < in.ConfidenceThreshold {
			continue
		}
		if limit := in.Thresholds.Upper(m); f.Value > limit {
			return fmt.Sprintf("%s forecast %.1f above %.1f (confidence %.2f)", m, f.Value, limit, f.Confidence), true
		}
	}
	return "", false
}
