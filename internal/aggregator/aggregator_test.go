package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/provider"
	"github.com/sri0013/vnf-project/internal/registry"
)

type recordingObserver struct {
	mu      sync.Mutex
	samples int
	aggs    []domain.AggregatedMetric
}

func (o *recordingObserver) ObserveSample(domain.Instance, domain.MetricSample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples++
}

func (o *recordingObserver) ObserveAggregate(agg domain.AggregatedMetric) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aggs = append(o.aggs, agg)
}

type fixture struct {
	rt  *provider.SimulatedRuntime
	reg *registry.Registry
	agg *Aggregator
	obs *recordingObserver
}

func newFixture(t *testing.T, window int) *fixture {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	rt := provider.NewSimulatedRuntime(provider.SimulatedOptions{})
	reg := registry.New()
	obs := &recordingObserver{}
	agg := New(reg, rt, pools.Probe, obs, Config{
		Types:        []domain.VNFType{domain.VNFFirewall},
		WindowSize:   window,
		ProbeTimeout: time.Second,
		Interval:     10 * time.Millisecond,
	})
	return &fixture{rt: rt, reg: reg, agg: agg, obs: obs}
}

func (f *fixture) addInstance(t *testing.T, vnfType domain.VNFType, load provider.Load) domain.Instance {
	t.Helper()
	u, err := f.rt.Create(context.Background(), vnfType)
	require.NoError(t, err)
	require.NoError(t, f.rt.SetUnitLoad(u.ID, load))
	inst := domain.Instance{ID: u.ID, VNFType: vnfType, Address: u.Address, Managed: true}
	require.NoError(t, f.reg.Register(inst))
	return inst
}

func TestAggregate_MeanOverAnsweringInstances(t *testing.T) {
	f := newFixture(t, 5)
	f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 80, MemPct: 60, LatencyMs: 400})
	f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 40, MemPct: 20, LatencyMs: 200})
	dead := f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 100, MemPct: 100, LatencyMs: 5000})
	require.NoError(t, f.rt.SetUnitHealthy(dead.ID, false))

	agg, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.True(t, ok)

	assert.Equal(t, 2, agg.Instances)
	assert.InDelta(t, 60, agg.CPUPct, 1e-9)
	assert.InDelta(t, 40, agg.MemPct, 1e-9)
	assert.InDelta(t, 300, agg.LatencyMs, 1e-9)

	samples := f.agg.Samples(domain.VNFFirewall)
	assert.Len(t, samples, 2)
	assert.NotContains(t, samples, dead.ID)

	latest, ok := f.agg.Latest(domain.VNFFirewall)
	require.True(t, ok)
	assert.Equal(t, agg, latest)
	assert.Equal(t, 2, f.obs.samples)
	assert.Len(t, f.obs.aggs, 1)
}

func TestAggregate_NoInstancesOrNoAnswers(t *testing.T) {
	f := newFixture(t, 5)

	_, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	assert.False(t, ok, "no instances")

	inst := f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 10})
	require.NoError(t, f.rt.SetUnitHealthy(inst.ID, false))

	_, ok = f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	assert.False(t, ok, "no successful poll")
	assert.Empty(t, f.agg.History(domain.VNFFirewall, domain.MetricCPU))
}

func TestLatest_ClearedWhenNoInstanceAnswers(t *testing.T) {
	f := newFixture(t, 5)
	inst := f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 95})

	_, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.True(t, ok)
	_, ok = f.agg.Latest(domain.VNFFirewall)
	require.True(t, ok)

	require.NoError(t, f.rt.SetUnitHealthy(inst.ID, false))
	_, ok = f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.False(t, ok)

	_, ok = f.agg.Latest(domain.VNFFirewall)
	assert.False(t, ok, "a silent cycle must not leave the old aggregate behind")
	assert.Len(t, f.agg.History(domain.VNFFirewall, domain.MetricCPU), 1)
}

func TestAggregate_SkipsNonActive(t *testing.T) {
	f := newFixture(t, 5)
	f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 20})
	draining := f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 90})
	_, err := f.reg.Transition(draining.ID, domain.InstanceDraining, domain.InstanceActive)
	require.NoError(t, err)

	agg, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Instances)
	assert.InDelta(t, 20, agg.CPUPct, 1e-9)
}

func TestHistory_BoundedFIFO(t *testing.T) {
	f := newFixture(t, 2) // cap 4
	inst := f.addInstance(t, domain.VNFFirewall, provider.Load{})

	for i := 1; i <= 6; i++ {
		require.NoError(t, f.rt.SetUnitLoad(inst.ID, provider.Load{CPUPct: float64(i)}))
		_, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
		require.True(t, ok)
	}

	assert.Equal(t, 4, f.agg.HistoryCap())
	assert.Equal(t, []float64{3, 4, 5, 6}, f.agg.History(domain.VNFFirewall, domain.MetricCPU))
	assert.Len(t, f.agg.History(domain.VNFFirewall, domain.MetricLatency), 4)
	assert.Nil(t, f.agg.History(domain.VNFAntivirus, domain.MetricCPU))
}

func TestSamples_ForgetsRemovedInstances(t *testing.T) {
	f := newFixture(t, 5)
	a := f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 20})
	f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 30})

	_, ok := f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.True(t, ok)
	require.Len(t, f.agg.Samples(domain.VNFFirewall), 2)

	f.reg.Unregister(a.ID)
	_, ok = f.agg.Aggregate(context.Background(), domain.VNFFirewall)
	require.True(t, ok)
	assert.NotContains(t, f.agg.Samples(domain.VNFFirewall), a.ID)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	f := newFixture(t, 5)
	f.addInstance(t, domain.VNFFirewall, provider.Load{CPUPct: 50})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.agg.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(f.agg.History(domain.VNFFirewall, domain.MetricCPU)) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSeries(t *testing.T) {
	s := newSeries(3)
	assert.Empty(t, s.values())
	s.push(1)
	s.push(2)
	assert.Equal(t, []float64{1, 2}, s.values())
	s.push(3)
	s.push(4)
	assert.Equal(t, []float64{2, 3, 4}, s.values())
}
