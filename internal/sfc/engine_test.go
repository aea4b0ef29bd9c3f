package sfc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/flowtable"
	"github.com/sri0013/vnf-project/internal/lifecycle"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/policy"
	"github.com/sri0013/vnf-project/internal/provider"
	"github.com/sri0013/vnf-project/internal/registry"
	"github.com/sri0013/vnf-project/internal/store"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.EventType
}

func (l *eventLog) handle(_ context.Context, ev *domain.DomainEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.EventType)
	return nil
}

func (l *eventLog) list() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.EventType(nil), l.events...)
}

type outcomeCounter struct {
	mu      sync.Mutex
	success int
	failure int
}

func (o *outcomeCounter) ObserveAllocation(_ domain.RequestType, success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.success++
	} else {
		o.failure++
	}
}

type stubPolicy struct {
	rec policy.Recommendation
}

func (p stubPolicy) Recommend(context.Context, policy.Snapshot) (policy.Recommendation, error) {
	return p.rec, nil
}

type fixture struct {
	rt       *provider.SimulatedRuntime
	reg      *registry.Registry
	flows    *flowtable.Table
	mgr      *lifecycle.Manager
	store    *store.MemoryStore
	events   *eventLog
	observer *outcomeCounter
	engine   *Engine
}

type fixtureOpts struct {
	complementary map[string]config.ChainConfig
	policy        policy.Provider
	duration      time.Duration
}

func newFixture(t *testing.T, fo fixtureOpts) *fixture {
	t.Helper()
	rt := provider.NewSimulatedRuntime(provider.SimulatedOptions{})
	reg := registry.New()
	flows := flowtable.NewTable(reg, nil)
	dispatcher := domain.NewEventDispatcher()
	events := &eventLog{}
	dispatcher.RegisterAll(events.handle, domain.EventSFCActivated, domain.EventSFCFailed, domain.EventSFCCompleted)

	mgr := lifecycle.NewManager(reg, flows, rt, rt, dispatcher, lifecycle.Config{
		HealthCheckTimeout: 100 * time.Millisecond,
		HealthPollInterval: 5 * time.Millisecond,
		ProbeTimeout:       50 * time.Millisecond,
	})

	cat, err := NewCatalog(config.SFCConfig{
		RequestTypes: map[string]config.ChainConfig{
			"inbound_user_protection": {
				Chain:         []string{"firewall", "spamfilter", "antivirus", "content_filtering"},
				Direction:     "inbound",
				LatencyBudget: 100 * time.Millisecond,
			},
			"attachment_risk_reduction": {
				Chain:     []string{"firewall", "spamfilter", "antivirus"},
				Direction: "inbound",
			},
			"auth_and_anti_spoof_enforcement": {
				Chain:     []string{"firewall", "spamfilter"},
				Direction: "bidirectional",
			},
		},
		ComplementaryChains: fo.complementary,
	}, allTypes)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	observer := &outcomeCounter{}
	engine := NewEngine(cat, flowtable.NewLoadBalancer(reg), mgr, flows, Config{
		DefaultPriority:        5,
		DefaultServiceDuration: fo.duration,
		Known:                  allTypes,
	}, Options{
		Policy:     fo.policy,
		Store:      st,
		Dispatcher: dispatcher,
		Observer:   observer,
	})
	mgr.SetGuard(engine)

	return &fixture{
		rt: rt, reg: reg, flows: flows, mgr: mgr, store: st,
		events: events, observer: observer, engine: engine,
	}
}

func (f *fixture) provision(t *testing.T, vnfType domain.VNFType, n int) []domain.Instance {
	t.Helper()
	_, err := f.mgr.Provision(context.Background(), vnfType, n)
	require.NoError(t, err)
	return f.reg.ListActive(vnfType)
}

func (f *fixture) sfcRules(sfcID string) []domain.FlowRule {
	var out []domain.FlowRule
	for _, r := range f.flows.List() {
		if r.SFCID == sfcID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fixture) request(t *testing.T, rt domain.RequestType) *domain.SFCRequest {
	t.Helper()
	req, err := f.engine.BuildRequest(domain.RequestMetadata{}, rt)
	require.NoError(t, err)
	return req
}

func TestBuildRequest(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	req, err := f.engine.BuildRequest(domain.RequestMetadata{Direction: domain.DirectionInbound}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestInboundUserProtection, req.RequestType)
	assert.Equal(t, domain.DirectionInbound, req.Direction)
	assert.Equal(t, 5, req.Priority)
	assert.Equal(t, int64(100), req.LatencyBudgetMs)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.NotEmpty(t, req.ID)

	_, err = f.engine.BuildRequest(domain.RequestMetadata{SaaSAccess: true}, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnknownRequestType))

	_, err = f.engine.BuildRequest(domain.RequestMetadata{Priority: 11}, domain.RequestInboundUserProtection)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequestField))

	_, err = f.engine.BuildRequest(domain.RequestMetadata{ServiceDurationSeconds: -1}, domain.RequestInboundUserProtection)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequestField))
}

func TestAllocate_UsesExistingCapacity(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	for _, vt := range []domain.VNFType{domain.VNFFirewall, domain.VNFSpamFilter, domain.VNFAntivirus, domain.VNFContentFiltering} {
		f.provision(t, vt, 1)
	}
	created, _ := f.rt.Stats()

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestInboundUserProtection))
	require.NoError(t, err)

	assert.Equal(t, domain.SFCActive, inst.Status)
	assert.NotNil(t, inst.StartTime)
	assert.Len(t, inst.AllocatedVNFs, 4)
	assert.Len(t, inst.FlowRuleIDs, 4)
	for _, vt := range inst.Chain {
		assert.True(t, f.engine.InUse(inst.AllocatedVNFs[vt]))
	}

	rules := f.sfcRules(inst.ID)
	require.Len(t, rules, 4)
	for _, r := range rules {
		assert.Equal(t, domain.FlowActive, r.Status)
		assert.Equal(t, 5, r.Priority)
		assert.Equal(t, inst.AllocatedVNFs[r.VNFType], r.InstanceID)
	}

	after, _ := f.rt.Stats()
	assert.Equal(t, created, after, "no scale-out with spare capacity")
	assert.Equal(t, []domain.EventType{domain.EventSFCActivated}, f.events.list())

	rec, err := f.store.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestActive, rec.Request.Status)
}

func TestAllocate_ScalesOutWithoutCapacity(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	assert.Equal(t, domain.SFCActive, inst.Status)
	assert.Equal(t, 1, f.reg.CountActive(domain.VNFFirewall))
	assert.Equal(t, 1, f.reg.CountActive(domain.VNFSpamFilter))
}

func TestAllocate_RollbackOnHopFailure(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	existing := f.provision(t, domain.VNFFirewall, 1)
	f.rt.FailCreate(domain.VNFAntivirus, errors.New("quota exceeded"))

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestAttachmentRiskReduction))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAllocationFailed))

	require.NotNil(t, inst)
	assert.Equal(t, domain.SFCFailed, inst.Status)
	assert.NotEmpty(t, inst.FailureReason)
	assert.Empty(t, f.sfcRules(inst.ID), "every hop rule removed")

	// The pre-existing firewall stays; the spamfilter created for hop 2 is gone.
	assert.Equal(t, 1, f.reg.CountActive(domain.VNFFirewall))
	_, ok := f.reg.Get(existing[0].ID)
	assert.True(t, ok)
	assert.Zero(t, f.reg.CountActive(domain.VNFSpamFilter))
	assert.Empty(t, f.reg.List(domain.VNFSpamFilter))
	assert.False(t, f.engine.InUse(existing[0].ID))

	rec, err := f.engine.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestFailed, rec.Request.Status)

	stats := f.engine.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.AcceptanceRatio)
	assert.Equal(t, []domain.EventType{domain.EventSFCFailed}, f.events.list())
	assert.Equal(t, 1, f.observer.failure)
}

func TestAllocate_RejectsInvalidChain(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	req := f.request(t, domain.RequestAuthAndAntiSpoofEnforcement)
	req.Chain = []domain.VNFType{domain.VNFFirewall, domain.VNFFirewall}

	_, err := f.engine.Allocate(context.Background(), req)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidChain))
	assert.Zero(t, f.engine.Stats().Total)
}

func TestAllocate_PolicyForcesScaleOut(t *testing.T) {
	f := newFixture(t, fixtureOpts{policy: stubPolicy{rec: policy.Recommendation{
		Action:  policy.ActionAllocate,
		VNFType: domain.VNFFirewall,
	}}})
	existing := f.provision(t, domain.VNFFirewall, 1)
	f.provision(t, domain.VNFSpamFilter, 1)

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	assert.NotEqual(t, existing[0].ID, inst.AllocatedVNFs[domain.VNFFirewall])
	assert.Equal(t, 2, f.reg.CountActive(domain.VNFFirewall))
	assert.Equal(t, 1, f.reg.CountActive(domain.VNFSpamFilter))
}

func TestCleanup_ReleasesOwnedInstancesOnceUnreferenced(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	first, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	second, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	fw := first.AllocatedVNFs[domain.VNFFirewall]
	assert.Equal(t, fw, second.AllocatedVNFs[domain.VNFFirewall], "second chain shares the instance")

	require.NoError(t, f.engine.Cleanup(ctx, first.ID))
	_, ok := f.reg.Get(fw)
	assert.True(t, ok, "still referenced by the second chain")
	assert.Empty(t, f.sfcRules(first.ID))
	assert.Len(t, f.sfcRules(second.ID), 2)

	require.NoError(t, f.engine.Cleanup(ctx, second.ID))
	_, ok = f.reg.Get(fw)
	assert.False(t, ok, "retired after the last reference")
	assert.Empty(t, f.flows.List())

	rec, err := f.engine.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SFCCompleted, rec.Instance.Status)
	assert.NotNil(t, rec.Instance.EndTime)

	// Finished chains are a no-op.
	require.NoError(t, f.engine.Cleanup(ctx, first.ID))
	assert.True(t, apperrors.HasCode(f.engine.Cleanup(ctx, "missing"), apperrors.CodeSFCNotFound))

	assert.Equal(t, []domain.EventType{
		domain.EventSFCActivated, domain.EventSFCActivated,
		domain.EventSFCCompleted, domain.EventSFCCompleted,
	}, f.events.list())
}

func TestCleanup_KeepsSharedPoolInstances(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	f.provision(t, domain.VNFFirewall, 1)
	f.provision(t, domain.VNFSpamFilter, 1)

	inst, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	require.NoError(t, f.engine.Cleanup(ctx, inst.ID))

	assert.Equal(t, 1, f.reg.CountActive(domain.VNFFirewall))
	assert.Equal(t, 1, f.reg.CountActive(domain.VNFSpamFilter))
	assert.Len(t, f.flows.List(), 2, "default rules untouched")
}

func TestScaleIn_VetoedWhilePinned(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	f.provision(t, domain.VNFFirewall, 1)
	f.provision(t, domain.VNFSpamFilter, 1)

	inst, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	fw := inst.AllocatedVNFs[domain.VNFFirewall]

	removed, err := f.mgr.ScaleIn(ctx, domain.VNFFirewall, fw)
	assert.False(t, removed)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInstanceInUse))
	assert.Len(t, f.sfcRules(inst.ID), 2)

	require.NoError(t, f.engine.Cleanup(ctx, inst.ID))
	removed, err = f.mgr.ScaleIn(ctx, domain.VNFFirewall, fw)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestSubmit_BidirectionalCreatesComplementary(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	res, err := f.engine.Submit(context.Background(), domain.RequestMetadata{Direction: domain.DirectionOutbound}, "")
	require.NoError(t, err)
	require.NotNil(t, res.Complementary)

	assert.Equal(t, domain.SFCActive, res.Primary.Status)
	assert.Equal(t, domain.SFCActive, res.Complementary.Status)
	assert.Equal(t, res.Primary.ID+"_complementary", res.Complementary.ID)
	assert.Equal(t, res.Primary.ID, res.Complementary.ComplementaryOf)
	assert.Equal(t, []domain.VNFType{domain.VNFSpamFilter, domain.VNFFirewall}, res.Complementary.Chain)
	assert.Equal(t, domain.DirectionInbound, res.Complementary.Direction)
	assert.Equal(t, 2, f.engine.Stats().Successful)
}

func TestSubmit_UnidirectionalHasNoComplementary(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	res, err := f.engine.Submit(context.Background(), domain.RequestMetadata{}, domain.RequestAttachmentRiskReduction)
	require.NoError(t, err)
	assert.Nil(t, res.Complementary)
	assert.Equal(t, domain.SFCActive, res.Primary.Status)
}

func TestComplementaryRequest_InboundBecomesOutbound(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	req := &domain.SFCRequest{
		ID:          "req-1",
		RequestType: domain.RequestAuthAndAntiSpoofEnforcement,
		Direction:   domain.DirectionInbound,
		Chain:       []domain.VNFType{domain.VNFFirewall, domain.VNFSpamFilter},
		Priority:    5,
	}

	comp := f.engine.ComplementaryRequest(req)
	assert.Equal(t, "req-1_complementary", comp.ID)
	assert.Equal(t, domain.DirectionOutbound, comp.Direction)
	assert.Equal(t, []domain.VNFType{domain.VNFSpamFilter, domain.VNFFirewall}, comp.Chain)
	assert.Equal(t, []domain.VNFType{domain.VNFFirewall, domain.VNFSpamFilter}, req.Chain, "input untouched")
}

func TestCreateBidirectional_ComplementaryFailureKeepsPrimary(t *testing.T) {
	f := newFixture(t, fixtureOpts{complementary: map[string]config.ChainConfig{
		"auth_and_anti_spoof_enforcement_response": {Chain: []string{"encryption_gateway"}},
	}})
	f.rt.FailCreate(domain.VNFEncryptionGateway, errors.New("image missing"))

	primary, comp, err := f.engine.CreateBidirectional(context.Background(), domain.RequestMetadata{})
	require.NoError(t, err)
	assert.Equal(t, domain.SFCActive, primary.Status)
	assert.Nil(t, comp, "a failed return path is not handed to the caller")
	assert.Len(t, f.sfcRules(primary.ID), 2)

	rec, err := f.engine.Get(context.Background(), primary.ID+"_complementary")
	require.NoError(t, err)
	assert.Equal(t, domain.SFCFailed, rec.Instance.Status)
	assert.Equal(t, []domain.VNFType{domain.VNFEncryptionGateway}, rec.Instance.Chain)

	stats := f.engine.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1, stats.Active)
	assert.InDelta(t, 0.5, stats.AcceptanceRatio, 1e-9)
}

func TestLeaseExpiry(t *testing.T) {
	f := newFixture(t, fixtureOpts{duration: 20 * time.Millisecond})
	sched := NewTimerScheduler(f.engine, nil)
	defer sched.Stop()
	f.engine.SetScheduler(sched)

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	require.NotNil(t, inst.ExpiresAt)

	assert.Eventually(t, func() bool {
		rec, err := f.engine.Get(context.Background(), inst.ID)
		return err == nil && rec.Instance.Status == domain.SFCCompleted
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.flows.List()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sched.Pending())
}

func TestCleanup_CancelsPendingExpiry(t *testing.T) {
	f := newFixture(t, fixtureOpts{duration: time.Hour})
	sched := NewTimerScheduler(f.engine, nil)
	defer sched.Stop()
	f.engine.SetScheduler(sched)

	inst, err := f.engine.Allocate(context.Background(), f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Pending())

	require.NoError(t, f.engine.Cleanup(context.Background(), inst.ID))
	assert.Zero(t, sched.Pending())
}

func TestRestore_FailsLeftoverChains(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	now := time.Now()
	for id, status := range map[string]domain.SFCStatus{
		"a": domain.SFCActive,
		"b": domain.SFCAllocating,
		"c": domain.SFCCompleted,
	} {
		require.NoError(t, f.store.Save(ctx, domain.SFCRecord{
			Request:  &domain.SFCRequest{ID: id, Status: domain.RequestActive},
			Instance: &domain.SFCInstance{ID: id, Status: status, CreatedAt: now},
		}))
	}

	n, err := f.engine.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := f.engine.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.SFCFailed, rec.Instance.Status)
	rec, err = f.engine.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, domain.SFCCompleted, rec.Instance.Status)
}

func TestList(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	first, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	_, err = f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
	require.NoError(t, err)
	require.NoError(t, f.engine.Cleanup(ctx, first.ID))

	all, err := f.engine.List(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.engine.List(ctx, store.Filter{Status: domain.SFCActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, first.ID, active[0].Instance.ID)
}

func TestAllocate_ConcurrentChainsStayConsistent(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.provision(t, domain.VNFFirewall, 2)
	f.provision(t, domain.VNFSpamFilter, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := f.engine.Allocate(ctx, f.request(t, domain.RequestAuthAndAntiSpoofEnforcement))
			if assert.NoError(t, err) {
				ids <- inst.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		rules := f.sfcRules(id)
		assert.Len(t, rules, 2)
		for _, r := range rules {
			got, ok := f.reg.Get(r.InstanceID)
			require.True(t, ok)
			assert.Equal(t, domain.InstanceActive, got.Status)
		}
	}
	assert.Equal(t, 8, f.engine.Stats().Active)
}
