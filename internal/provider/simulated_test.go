package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sri0013/vnf-project/internal/domain"
)

func TestSimulatedRuntime_CreateProbeTerminate(t *testing.T) {
	rt := NewSimulatedRuntime(SimulatedOptions{Baseline: Load{CPUPct: 40, MemPct: 50, LatencyMs: 300}})
	ctx := context.Background()

	unit, err := rt.Create(ctx, domain.VNFContentFiltering)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(unit.ID, "content-filtering-"))
	assert.Equal(t, simulatedScheme+unit.ID, unit.Address)

	require.NoError(t, rt.CheckHealth(ctx, unit.Address))

	sample, err := rt.FetchMetrics(ctx, unit.Address)
	require.NoError(t, err)
	assert.Equal(t, 40.0, sample.CPUPct)
	assert.Equal(t, 300.0, sample.LatencyMs)

	require.NoError(t, rt.Terminate(ctx, unit.ID))
	require.NoError(t, rt.Terminate(ctx, unit.ID), "terminate is idempotent")
	assert.Error(t, rt.CheckHealth(ctx, unit.Address))

	created, terminated := rt.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, terminated)
}

func TestSimulatedRuntime_LoadOverrides(t *testing.T) {
	rt := NewSimulatedRuntime(SimulatedOptions{})
	ctx := context.Background()

	a, err := rt.Create(ctx, domain.VNFFirewall)
	require.NoError(t, err)
	b, err := rt.Create(ctx, domain.VNFFirewall)
	require.NoError(t, err)

	rt.SetLoad(domain.VNFFirewall, Load{CPUPct: 90, MemPct: 20, LatencyMs: 100})
	require.NoError(t, rt.SetUnitLoad(b.ID, Load{CPUPct: 10}))

	sa, err := rt.FetchMetrics(ctx, a.Address)
	require.NoError(t, err)
	sb, err := rt.FetchMetrics(ctx, b.Address)
	require.NoError(t, err)

	assert.Equal(t, 90.0, sa.CPUPct)
	assert.Equal(t, 10.0, sb.CPUPct)
	assert.Error(t, rt.SetUnitLoad("missing", Load{}))
}

func TestSimulatedRuntime_FailureInjection(t *testing.T) {
	rt := NewSimulatedRuntime(SimulatedOptions{})
	ctx := context.Background()

	boom := errors.New("quota exceeded")
	rt.FailCreate(domain.VNFAntivirus, boom)
	_, err := rt.Create(ctx, domain.VNFAntivirus)
	require.ErrorIs(t, err, boom)

	rt.FailCreate(domain.VNFAntivirus, nil)
	rt.FailHealth(domain.VNFAntivirus, true)
	unit, err := rt.Create(ctx, domain.VNFAntivirus)
	require.NoError(t, err)
	assert.Error(t, rt.CheckHealth(ctx, unit.Address))
	_, err = rt.FetchMetrics(ctx, unit.Address)
	assert.Error(t, err)

	require.NoError(t, rt.SetUnitHealthy(unit.ID, true))
	assert.NoError(t, rt.CheckHealth(ctx, unit.Address))
}

func TestSimulatedRuntime_StartupDelay(t *testing.T) {
	rt := NewSimulatedRuntime(SimulatedOptions{StartupDelay: 50 * time.Millisecond})
	ctx := context.Background()

	unit, err := rt.Create(ctx, domain.VNFSpamFilter)
	require.NoError(t, err)
	assert.Error(t, rt.CheckHealth(ctx, unit.Address))

	assert.Eventually(t, func() bool {
		return rt.CheckHealth(ctx, unit.Address) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestSimulatedRuntime_CancelledContext(t *testing.T) {
	rt := NewSimulatedRuntime(SimulatedOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.Create(ctx, domain.VNFFirewall)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rt.Units())
}
