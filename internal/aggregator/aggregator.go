// Package aggregator polls VNF instances for load and keeps per-type
// aggregates plus the rolling history the forecaster reads.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/provider"
)

// InstanceSource lists the instances to poll.
type InstanceSource interface {
	ListActive(vnfType domain.VNFType) []domain.Instance
}

// Observer receives every successful sample and aggregate, e.g. for export.
type Observer interface {
	ObserveSample(inst domain.Instance, sample domain.MetricSample)
	ObserveAggregate(agg domain.AggregatedMetric)
}

// Config configures an Aggregator.
type Config struct {
	Types []domain.VNFType
	// WindowSize is the forecast window; history keeps 2×WindowSize points.
	WindowSize   int
	ProbeTimeout time.Duration
	Interval     time.Duration
}

// Aggregator polls ACTIVE instances and keeps the latest aggregate, the last
// successful sample per instance and a bounded history per (type, metric).
type Aggregator struct {
	source   InstanceSource
	prober   provider.Prober
	pool     *worker.Pool
	observer Observer
	cfg      Config
	log      *zap.Logger

	mu      sync.RWMutex
	history map[domain.VNFType]map[domain.MetricName]*series
	latest  map[domain.VNFType]domain.AggregatedMetric
	samples map[domain.VNFType]map[string]domain.MetricSample
}

// New creates an Aggregator. pool and observer may be nil.
func New(source InstanceSource, prober provider.Prober, pool *worker.Pool, observer Observer, cfg Config) *Aggregator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Aggregator{
		source:   source,
		prober:   prober,
		pool:     pool,
		observer: observer,
		cfg:      cfg,
		log:      logger.Named("aggregator"),
		history:  make(map[domain.VNFType]map[domain.MetricName]*series),
		latest:   make(map[domain.VNFType]domain.AggregatedMetric),
		samples:  make(map[domain.VNFType]map[string]domain.MetricSample),
	}
}

// HistoryCap is the number of points kept per (type, metric).
func (a *Aggregator) HistoryCap() int {
	return 2 * a.cfg.WindowSize
}

// Aggregate polls every ACTIVE instance of the type once and returns the mean
// over the instances that answered. Instances whose probe fails are left out
// of this cycle; their previous values are not reused. It returns false when
// there are no instances or no probe succeeded.
func (a *Aggregator) Aggregate(ctx context.Context, vnfType domain.VNFType) (domain.AggregatedMetric, bool) {
	instances := a.source.ListActive(vnfType)
	if len(instances) == 0 {
		a.forget(vnfType, nil)
		return domain.AggregatedMetric{}, false
	}

	results := a.pollAll(ctx, instances)

	var (
		agg  = domain.AggregatedMetric{VNFType: vnfType, ObservedAt: time.Now()}
		good = make(map[string]domain.MetricSample, len(results))
	)
	for i, s := range results {
		if s == nil {
			continue
		}
		agg.CPUPct += s.CPUPct
		agg.MemPct += s.MemPct
		agg.LatencyMs += s.LatencyMs
		agg.Instances++
		good[instances[i].ID] = *s
	}

	live := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		live[inst.ID] = struct{}{}
	}

	if agg.Instances == 0 {
		a.forget(vnfType, live)
		a.log.Warn("No instance answered the metrics probe",
			zap.String("vnf_type", string(vnfType)),
			zap.Int("instances", len(instances)),
		)
		return domain.AggregatedMetric{}, false
	}

	n := float64(agg.Instances)
	agg.CPUPct /= n
	agg.MemPct /= n
	agg.LatencyMs /= n

	a.mu.Lock()
	per := a.samples[vnfType]
	if per == nil {
		per = make(map[string]domain.MetricSample)
		a.samples[vnfType] = per
	}
	for id := range per {
		if _, ok := live[id]; !ok {
			delete(per, id)
		}
	}
	for id, s := range good {
		per[id] = s
	}
	a.latest[vnfType] = agg
	hist := a.history[vnfType]
	if hist == nil {
		hist = make(map[domain.MetricName]*series, len(domain.AllMetrics))
		for _, m := range domain.AllMetrics {
			hist[m] = newSeries(a.HistoryCap())
		}
		a.history[vnfType] = hist
	}
	for _, m := range domain.AllMetrics {
		hist[m].push(agg.Value(m))
	}
	a.mu.Unlock()

	if a.observer != nil {
		for i, s := range results {
			if s != nil {
				a.observer.ObserveSample(instances[i], *s)
			}
		}
		a.observer.ObserveAggregate(agg)
	}

	a.log.Debug("Aggregated metrics",
		zap.String("vnf_type", string(vnfType)),
		zap.Int("answered", agg.Instances),
		zap.Int("instances", len(instances)),
		zap.Float64("cpu_pct", agg.CPUPct),
		zap.Float64("mem_pct", agg.MemPct),
		zap.Float64("latency_ms", agg.LatencyMs),
	)
	return agg, true
}

// pollAll probes instances concurrently. A nil entry means the probe failed.
func (a *Aggregator) pollAll(ctx context.Context, instances []domain.Instance) []*domain.MetricSample {
	results := make([]*domain.MetricSample, len(instances))
	var wg sync.WaitGroup
	for i := range instances {
		i := i
		probe := func(context.Context) {
			defer wg.Done()
			results[i] = a.poll(ctx, instances[i])
		}
		wg.Add(1)
		if a.pool == nil {
			probe(ctx)
			continue
		}
		// Detached so a queued probe always runs and releases wg.
		if err := a.pool.Submit(context.WithoutCancel(ctx), probe); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func (a *Aggregator) poll(ctx context.Context, inst domain.Instance) *domain.MetricSample {
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	s, err := a.prober.FetchMetrics(probeCtx, inst.Address)
	if err != nil {
		a.log.Debug("Metrics probe failed",
			zap.String("instance_id", inst.ID),
			zap.Error(apperrors.ErrProbeUnavailablef(inst.ID, err)),
		)
		return nil
	}
	s.InstanceID = inst.ID
	if s.ObservedAt.IsZero() {
		s.ObservedAt = time.Now()
	}
	return s
}

// forget clears the latest aggregate of a type after a cycle without
// answers and drops stored samples for instances not in live.
func (a *Aggregator) forget(vnfType domain.VNFType, live map[string]struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.latest, vnfType)
	for id := range a.samples[vnfType] {
		if _, ok := live[id]; !ok {
			delete(a.samples[vnfType], id)
		}
	}
}

// History returns the rolling history for (type, metric), oldest first.
func (a *Aggregator) History(vnfType domain.VNFType, metric domain.MetricName) []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.history[vnfType][metric]; ok {
		return s.values()
	}
	return nil
}

// Latest returns the aggregate of the last cycle, if that cycle had answers.
func (a *Aggregator) Latest(vnfType domain.VNFType) (domain.AggregatedMetric, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	agg, ok := a.latest[vnfType]
	return agg, ok
}

// Samples returns the last successful sample per instance of a type.
func (a *Aggregator) Samples(vnfType domain.VNFType) map[string]domain.MetricSample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]domain.MetricSample, len(a.samples[vnfType]))
	for id, s := range a.samples[vnfType] {
		out[id] = s
	}
	return out
}

// Poll aggregates every configured type once.
func (a *Aggregator) Poll(ctx context.Context) {
	for _, t := range a.cfg.Types {
		if ctx.Err() != nil {
			return
		}
		a.Aggregate(ctx, t)
	}
}

// Run polls all configured types every Interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	interval := a.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}
