package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sri0013/vnf-project/internal/domain"
)

// Label names.
const (
	LabelVNFType     = "vnf_type"
	LabelInstanceID  = "instance_id"
	LabelMetric      = "metric"
	LabelAction      = "action"
	LabelOutcome     = "outcome"
	LabelRequestType = "request_type"
)

// Metrics holds the control plane's Prometheus collectors. Collectors are
// registered on an injected registry so tests can use a fresh one.
type Metrics struct {
	registry *prometheus.Registry

	instances      *prometheus.GaugeVec
	cpu            *prometheus.GaugeVec
	memory         *prometheus.GaugeVec
	latency        *prometheus.GaugeVec
	packets        *prometheus.GaugeVec
	aggregate      *prometheus.GaugeVec
	flowRules      *prometheus.GaugeVec
	scalingActions *prometheus.CounterVec
	allocations    *prometheus.CounterVec
	allocationTime prometheus.Histogram
}

// NewMetrics creates and registers every collector on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_instances",
			Help: "Number of ACTIVE instances per vnf type",
		}, []string{LabelVNFType}),
		cpu: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_cpu_usage",
			Help: "Last polled CPU usage percentage per instance",
		}, []string{LabelVNFType, LabelInstanceID}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_memory_usage",
			Help: "Last polled memory usage percentage per instance",
		}, []string{LabelVNFType, LabelInstanceID}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_processing_latency",
			Help: "Last polled processing latency in milliseconds per instance",
		}, []string{LabelVNFType, LabelInstanceID}),
		packets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_packets_processed",
			Help: "Packets processed as reported by the instance",
		}, []string{LabelVNFType, LabelInstanceID}),
		aggregate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_aggregated_metric",
			Help: "Mean of a metric over the ACTIVE instances of a type",
		}, []string{LabelVNFType, LabelMetric}),
		flowRules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnf_flow_rules",
			Help: "Number of flow rules per vnf type",
		}, []string{LabelVNFType}),
		scalingActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnf_scaling_actions_total",
			Help: "Scaling actions executed by the autoscaler",
		}, []string{LabelVNFType, LabelAction, LabelOutcome}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfc_allocations_total",
			Help: "SFC allocation attempts by request type and outcome",
		}, []string{LabelRequestType, LabelOutcome}),
		allocationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfc_allocation_duration_seconds",
			Help:    "Time to allocate a whole chain",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"vnf_instances":                   m.instances,
		"vnf_cpu_usage":                   m.cpu,
		"vnf_memory_usage":                m.memory,
		"vnf_processing_latency":          m.latency,
		"vnf_packets_processed":           m.packets,
		"vnf_aggregated_metric":           m.aggregate,
		"vnf_flow_rules":                  m.flowRules,
		"vnf_scaling_actions_total":       m.scalingActions,
		"sfc_allocations_total":           m.allocations,
		"sfc_allocation_duration_seconds": m.allocationTime,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSample records one instance poll.
func (m *Metrics) ObserveSample(inst domain.Instance, s domain.MetricSample) {
	labels := prometheus.Labels{LabelVNFType: string(inst.VNFType), LabelInstanceID: inst.ID}
	m.cpu.With(labels).Set(s.CPUPct)
	m.memory.With(labels).Set(s.MemPct)
	m.latency.With(labels).Set(s.LatencyMs)
	m.packets.With(labels).Set(float64(s.PacketsProcessed))
}

// ObserveAggregate records the per-type means of one polling cycle.
func (m *Metrics) ObserveAggregate(agg domain.AggregatedMetric) {
	for _, name := range domain.AllMetrics {
		m.aggregate.WithLabelValues(string(agg.VNFType), string(name)).Set(agg.Value(name))
	}
}

// FlowRulesChanged records the rule count of a type.
func (m *Metrics) FlowRulesChanged(vnfType domain.VNFType, active int) {
	m.flowRules.WithLabelValues(string(vnfType)).Set(float64(active))
}

// ObserveAllocation records one chain allocation.
func (m *Metrics) ObserveAllocation(requestType domain.RequestType, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.allocations.WithLabelValues(string(requestType), outcome).Inc()
	m.allocationTime.Observe(d.Seconds())
}

// SetInstances records the ACTIVE count of a type.
func (m *Metrics) SetInstances(vnfType domain.VNFType, n int) {
	m.instances.WithLabelValues(string(vnfType)).Set(float64(n))
}

// forget drops the per-instance series of a removed instance.
func (m *Metrics) forget(vnfType domain.VNFType, instanceID string) {
	for _, g := range []*prometheus.GaugeVec{m.cpu, m.memory, m.latency, m.packets} {
		g.DeleteLabelValues(string(vnfType), instanceID)
	}
}

// InstanceEventHandler keeps vnf_instances current from instance lifecycle
// events. count returns the ACTIVE count of a type.
func (m *Metrics) InstanceEventHandler(count func(domain.VNFType) int) domain.EventHandler {
	return func(_ context.Context, ev *domain.DomainEvent) error {
		var p domain.InstancePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
		}
		m.SetInstances(p.VNFType, count(p.VNFType))
		if ev.EventType == domain.EventInstanceRemoved {
			m.forget(p.VNFType, p.InstanceID)
		}
		return nil
	}
}

// ScalingEventHandler counts autoscaler outcomes.
func (m *Metrics) ScalingEventHandler() domain.EventHandler {
	return func(_ context.Context, ev *domain.DomainEvent) error {
		var p domain.ScalingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
		}
		outcome := "success"
		if ev.EventType == domain.EventScalingFailed {
			outcome = "failure"
		}
		m.scalingActions.WithLabelValues(string(p.VNFType), p.Action, outcome).Inc()
		return nil
	}
}
