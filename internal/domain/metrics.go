package domain

import "time"

// MetricName names one of the aggregated signals.
type MetricName string

const (
	MetricCPU     MetricName = "cpu"
	MetricMemory  MetricName = "memory"
	MetricLatency MetricName = "latency"
)

// AllMetrics is the set of metrics kept in the rolling history.
var AllMetrics = []MetricName{MetricCPU, MetricMemory, MetricLatency}

// MetricSample is one successful poll of an instance's metrics probe.
type MetricSample struct {
	InstanceID       string    `json:"instance_id"`
	CPUPct           float64   `json:"cpu_pct"`
	MemPct           float64   `json:"mem_pct"`
	LatencyMs        float64   `json:"latency_ms"`
	PacketsProcessed uint64    `json:"packets_processed"`
	ObservedAt       time.Time `json:"observed_at"`
}

// AggregatedMetric is the mean over the ACTIVE instances of a type that
// answered in one polling cycle.
type AggregatedMetric struct {
	VNFType    VNFType   `json:"vnf_type"`
	CPUPct     float64   `json:"cpu_pct"`
	MemPct     float64   `json:"mem_pct"`
	LatencyMs  float64   `json:"latency_ms"`
	Instances  int       `json:"instances"`
	ObservedAt time.Time `json:"observed_at"`
}

// Value returns the aggregate for one metric name.
func (a AggregatedMetric) Value(m MetricName) float64 {
	switch m {
	case MetricCPU:
		return a.CPUPct
	case MetricMemory:
		return a.MemPct
	case MetricLatency:
		return a.LatencyMs
	default:
		return 0
	}
}
