// Package sfc allocates service function chains: one instance per hop,
// one flow rule per hop, all-or-nothing with rollback.
package sfc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/observability"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/policy"
	"github.com/sri0013/vnf-project/internal/store"
)

// Balancer picks an ACTIVE instance of a type.
type Balancer interface {
	Next(vnfType domain.VNFType) (domain.Instance, bool)
}

// Scaler creates and removes instances.
type Scaler interface {
	ScaleOut(ctx context.Context, vnfType domain.VNFType) (domain.Instance, error)
	ScaleIn(ctx context.Context, vnfType domain.VNFType, id string) (bool, error)
}

// FlowTable installs and removes per-hop rules.
type FlowTable interface {
	AddSFCFlow(sfcID string, vnfType domain.VNFType, instanceID string, priority int) (domain.FlowRule, error)
	RemoveFlow(id string) bool
}

// Observer receives allocation outcomes.
type Observer interface {
	ObserveAllocation(requestType domain.RequestType, success bool, d time.Duration)
}

// Outcome labels passed to metrics and logs.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Config holds request defaults.
type Config struct {
	DefaultPriority        int
	DefaultServiceDuration time.Duration
	// Known restricts chains to these vnf types.
	Known []domain.VNFType
}

// Options wires optional collaborators. Nil fields are skipped.
type Options struct {
	Policy   policy.Provider
	Snapshot func(ctx context.Context) policy.Snapshot
	Store    store.Store
	// Pools runs instance retirement off the request path.
	Pools      Detacher
	Dispatcher *domain.EventDispatcher
	Observer   Observer
}

// Result is the outcome of Submit.
type Result struct {
	Primary       *domain.SFCInstance `json:"primary"`
	Complementary *domain.SFCInstance `json:"complementary,omitempty"`
	// ComplementaryError is set when the return path failed; its FAILED
	// record stays in the store.
	ComplementaryError string `json:"complementary_error,omitempty"`
}

// maxPickAttempts bounds retries when the balancer hands out an instance
// that is retired before its rule lands.
const maxPickAttempts = 3

type entry struct {
	req  *domain.SFCRequest
	inst *domain.SFCInstance
}

// Engine allocates and releases chains.
type Engine struct {
	catalog  *Catalog
	balancer Balancer
	scaler   Scaler
	flows    FlowTable
	cfg      Config
	opts     Options
	log      *zap.Logger

	schedMu   sync.RWMutex
	scheduler Scheduler

	mu sync.Mutex
	// live holds chains that are ALLOCATING or ACTIVE; finished chains are
	// served from the store.
	live map[string]*entry
	// refs counts live chains per instance; owned marks instances the
	// engine created and must retire once unreferenced.
	refs     map[string]int
	owned    map[string]bool
	retiring map[string]int
	pending  int

	total      int
	successful int
	failed     int
	allocMsSum float64
	overBudget int
}

// NewEngine creates an Engine.
func NewEngine(catalog *Catalog, balancer Balancer, scaler Scaler, flows FlowTable, cfg Config, opts Options) *Engine {
	if cfg.DefaultPriority <= 0 {
		cfg.DefaultPriority = 5
	}
	if opts.Policy == nil {
		opts.Policy = policy.Wait{}
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = domain.NewEventDispatcher()
	}
	return &Engine{
		catalog:  catalog,
		balancer: balancer,
		scaler:   scaler,
		flows:    flows,
		cfg:      cfg,
		opts:     opts,
		log:      logger.Named("sfc"),
		live:     make(map[string]*entry),
		refs:     make(map[string]int),
		owned:    make(map[string]bool),
		retiring: make(map[string]int),
	}
}

// SetScheduler installs the lease scheduler. Without one, chains never expire.
func (e *Engine) SetScheduler(s Scheduler) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	e.scheduler = s
}

// Catalog returns the chain catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// BuildRequest classifies metadata (or uses requestType when set), looks up
// the chain and fills defaults.
func (e *Engine) BuildRequest(meta domain.RequestMetadata, requestType domain.RequestType) (*domain.SFCRequest, error) {
	if requestType == "" {
		requestType = Classify(meta)
	}
	spec, ok := e.catalog.Lookup(requestType)
	if !ok {
		return nil, apperrors.ErrUnknownRequestTypef(string(requestType))
	}
	if meta.Priority == 0 {
		meta.Priority = e.cfg.DefaultPriority
	}
	if meta.Priority < 1 || meta.Priority > 10 {
		return nil, apperrors.ErrInvalidRequestFieldf("priority")
	}
	if meta.ServiceDurationSeconds < 0 {
		return nil, apperrors.ErrInvalidRequestFieldf("service_duration_seconds")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate sfc id: %w", err)
	}
	return &domain.SFCRequest{
		ID:              id.String(),
		RequestType:     requestType,
		Direction:       spec.Direction,
		Chain:           spec.Chain,
		Priority:        meta.Priority,
		Metadata:        meta,
		LatencyBudgetMs: spec.LatencyBudget.Milliseconds(),
		CreatedAt:       time.Now(),
		Status:          domain.RequestPending,
	}, nil
}

// ComplementaryRequest derives the return-path request for req.
func (e *Engine) ComplementaryRequest(req *domain.SFCRequest) *domain.SFCRequest {
	out := req.Clone()
	out.ID = req.ID + "_complementary"
	out.Chain = e.catalog.Complementary(req.RequestType, req.Chain)
	out.Direction = req.Direction.Reverse()
	out.CreatedAt = time.Now()
	out.Status = domain.RequestPending
	return out
}

// Submit builds a request and allocates it. Bidirectional request types
// also get their return path.
func (e *Engine) Submit(ctx context.Context, meta domain.RequestMetadata, requestType domain.RequestType) (Result, error) {
	req, err := e.BuildRequest(meta, requestType)
	if err != nil {
		return Result{}, err
	}
	if req.Direction == domain.DirectionBidirectional {
		return e.allocatePair(ctx, req)
	}
	inst, err := e.Allocate(ctx, req)
	return Result{Primary: inst}, err
}

// CreateBidirectional allocates the chain classified from meta and its
// complementary chain. When the complementary chain fails the primary is
// kept and the complementary result is nil.
func (e *Engine) CreateBidirectional(ctx context.Context, meta domain.RequestMetadata) (*domain.SFCInstance, *domain.SFCInstance, error) {
	req, err := e.BuildRequest(meta, "")
	if err != nil {
		return nil, nil, err
	}
	res, err := e.allocatePair(ctx, req)
	return res.Primary, res.Complementary, err
}

func (e *Engine) allocatePair(ctx context.Context, req *domain.SFCRequest) (Result, error) {
	primary, err := e.Allocate(ctx, req)
	if err != nil {
		return Result{Primary: primary}, err
	}

	compReq := e.ComplementaryRequest(req)
	comp, err := e.allocate(ctx, compReq, primary.ID)
	if err != nil {
		e.log.Warn("Complementary chain failed, keeping primary",
			zap.String("sfc_id", primary.ID),
			zap.String("complementary_id", compReq.ID),
			zap.Error(err),
		)
		return Result{Primary: primary, ComplementaryError: err.Error()}, nil
	}
	return Result{Primary: primary, Complementary: comp}, nil
}

// Allocate walks the chain in order, taking an ACTIVE instance per hop from
// the balancer or scaling out when there is none (or when the policy asks
// for a fresh allocation of that type). Any hop failure rolls back every
// hop already allocated and returns the FAILED instance with an
// ALLOCATION_FAILED error.
func (e *Engine) Allocate(ctx context.Context, req *domain.SFCRequest) (*domain.SFCInstance, error) {
	return e.allocate(ctx, req, "")
}

func (e *Engine) allocate(ctx context.Context, req *domain.SFCRequest, complementaryOf string) (out *domain.SFCInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "sfc.Allocate",
		attribute.String("sfc.id", req.ID),
		attribute.String("sfc.request_type", string(req.RequestType)),
		attribute.Int("sfc.hops", len(req.Chain)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := ValidateChain(req.Chain, e.cfg.Known); err != nil {
		return nil, apperrors.ErrInvalidChainf(err.Error())
	}

	start := time.Now()
	r := req.Clone()
	r.Status = domain.RequestAllocating
	inst := &domain.SFCInstance{
		ID:              r.ID,
		RequestRef:      r.ID,
		RequestType:     r.RequestType,
		Direction:       r.Direction,
		Chain:           append([]domain.VNFType(nil), r.Chain...),
		AllocatedVNFs:   make(map[domain.VNFType]string, len(r.Chain)),
		Status:          domain.SFCAllocating,
		ComplementaryOf: complementaryOf,
		CreatedAt:       start,
	}

	e.mu.Lock()
	if _, exists := e.live[r.ID]; exists {
		e.mu.Unlock()
		return nil, apperrors.ErrSFCExistsf(r.ID)
	}
	e.live[r.ID] = &entry{req: r, inst: inst}
	e.pending++
	e.total++
	rec := e.recordLocked(r.ID)
	e.mu.Unlock()
	e.persist(ctx, rec)

	advice := e.recommend(ctx)
	for hop, vnfType := range r.Chain {
		instanceID, ruleID, hopErr := e.allocateHop(ctx, r.ID, vnfType, r.Priority, advice)
		if hopErr != nil {
			e.log.Warn("SFC hop allocation failed, rolling back",
				zap.String("sfc_id", r.ID),
				zap.Int("hop", hop),
				zap.String("vnf_type", string(vnfType)),
				zap.Error(hopErr),
			)
			e.rollback(ctx, r.ID)
			return e.fail(ctx, r.ID, start, apperrors.ErrAllocationFailedf(string(vnfType), hop, hopErr))
		}
		e.mu.Lock()
		inst.AllocatedVNFs[vnfType] = instanceID
		inst.FlowRuleIDs = append(inst.FlowRuleIDs, ruleID)
		e.mu.Unlock()
	}
	return e.activate(ctx, r.ID, start), nil
}

// allocateHop returns the instance and rule id serving one hop. The
// instance is pinned on success and released on every failure path.
func (e *Engine) allocateHop(ctx context.Context, sfcID string, vnfType domain.VNFType, priority int, advice policy.Recommendation) (string, string, error) {
	if !advice.Applies(vnfType, policy.ActionAllocate) {
		for attempt := 0; attempt < maxPickAttempts; attempt++ {
			cand, ok := e.balancer.Next(vnfType)
			if !ok {
				break
			}
			if !e.pin(cand.ID, false) {
				continue
			}
			rule, err := e.flows.AddSFCFlow(sfcID, vnfType, cand.ID, priority)
			if err == nil {
				return cand.ID, rule.ID, nil
			}
			e.release(ctx, vnfType, cand.ID)
			e.log.Debug("Balanced instance rejected hop rule, retrying",
				zap.String("sfc_id", sfcID),
				zap.String("instance_id", cand.ID),
				zap.Error(err),
			)
		}
	}

	created, err := e.scaler.ScaleOut(ctx, vnfType)
	if err != nil {
		return "", "", err
	}
	if !e.pin(created.ID, true) {
		return "", "", fmt.Errorf("instance %s retired before it could serve the chain", created.ID)
	}
	rule, err := e.flows.AddSFCFlow(sfcID, vnfType, created.ID, priority)
	if err != nil {
		e.release(ctx, vnfType, created.ID)
		return "", "", err
	}
	return created.ID, rule.ID, nil
}

func (e *Engine) recommend(ctx context.Context) policy.Recommendation {
	if _, ok := e.opts.Policy.(policy.Wait); ok {
		return policy.Recommendation{Action: policy.ActionWait}
	}
	snap := policy.Snapshot{Timestamp: time.Now()}
	if e.opts.Snapshot != nil {
		snap = e.opts.Snapshot(ctx)
	}
	snap.PendingRequests = e.Pending()
	rec, err := e.opts.Policy.Recommend(ctx, snap)
	if err != nil {
		e.log.Warn("Policy provider unavailable, using load balancer", zap.Error(err))
		return policy.Recommendation{Action: policy.ActionWait}
	}
	return rec
}

// rollback removes every rule installed so far and releases its instances
// in reverse chain order.
func (e *Engine) rollback(ctx context.Context, sfcID string) {
	e.mu.Lock()
	ent := e.live[sfcID]
	rules := append([]string(nil), ent.inst.FlowRuleIDs...)
	hops := e.allocatedHopsLocked(ent.inst)
	e.mu.Unlock()

	for _, id := range rules {
		e.flows.RemoveFlow(id)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		e.release(ctx, hops[i].vnfType, hops[i].instanceID)
	}
}

func (e *Engine) fail(ctx context.Context, sfcID string, start time.Time, cause error) (*domain.SFCInstance, error) {
	now := time.Now()
	e.mu.Lock()
	ent := e.live[sfcID]
	ent.req.Status = domain.RequestFailed
	ent.inst.Status = domain.SFCFailed
	ent.inst.FailureReason = cause.Error()
	ent.inst.EndTime = &now
	ent.inst.AllocationMs = msSince(start, now)
	e.pending--
	e.failed++
	rec := e.recordLocked(sfcID)
	delete(e.live, sfcID)
	e.mu.Unlock()

	e.persist(ctx, rec)
	e.notify(ctx, domain.EventSFCFailed, rec.Instance, false, now.Sub(start))
	return rec.Instance, cause
}

func (e *Engine) activate(ctx context.Context, sfcID string, start time.Time) *domain.SFCInstance {
	now := time.Now()
	e.mu.Lock()
	ent := e.live[sfcID]
	ent.req.Status = domain.RequestActive
	ent.inst.Status = domain.SFCActive
	ent.inst.StartTime = &now
	ent.inst.AllocationMs = msSince(start, now)
	if d := e.serviceDuration(ent.req); d > 0 {
		expires := now.Add(d)
		ent.inst.ExpiresAt = &expires
	}
	e.pending--
	e.successful++
	e.allocMsSum += ent.inst.AllocationMs
	overBudget := ent.req.LatencyBudgetMs > 0 && ent.inst.AllocationMs > float64(ent.req.LatencyBudgetMs)
	if overBudget {
		e.overBudget++
	}
	rec := e.recordLocked(sfcID)
	e.mu.Unlock()

	e.persist(ctx, rec)
	if overBudget {
		e.log.Warn("SFC allocation exceeded latency budget",
			zap.String("sfc_id", sfcID),
			zap.String("request_type", string(rec.Request.RequestType)),
			zap.Float64("allocation_ms", rec.Instance.AllocationMs),
			zap.Int64("budget_ms", rec.Request.LatencyBudgetMs),
		)
	}
	if rec.Instance.ExpiresAt != nil {
		e.scheduleExpiry(ctx, sfcID, *rec.Instance.ExpiresAt)
	}
	e.notify(ctx, domain.EventSFCActivated, rec.Instance, true, now.Sub(start))
	return rec.Instance
}

func (e *Engine) serviceDuration(req *domain.SFCRequest) time.Duration {
	if req.Metadata.ServiceDurationSeconds > 0 {
		return time.Duration(req.Metadata.ServiceDurationSeconds) * time.Second
	}
	return e.cfg.DefaultServiceDuration
}

func (e *Engine) scheduleExpiry(ctx context.Context, sfcID string, at time.Time) {
	e.schedMu.RLock()
	s := e.scheduler
	e.schedMu.RUnlock()
	if s == nil {
		return
	}
	if err := s.ScheduleExpiry(ctx, sfcID, at); err != nil {
		e.log.Error("Failed to schedule SFC expiry",
			zap.String("sfc_id", sfcID),
			zap.Time("expires_at", at),
			zap.Error(err),
		)
	}
}

// Cleanup removes every rule of an ACTIVE chain, releases its instances and
// marks it COMPLETED. Cleaning a finished chain is a no-op.
func (e *Engine) Cleanup(ctx context.Context, sfcID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "sfc.Cleanup", attribute.String("sfc.id", sfcID))
	defer func() { observability.EndSpan(span, err) }()

	now := time.Now()
	e.mu.Lock()
	ent, ok := e.live[sfcID]
	if !ok {
		e.mu.Unlock()
		// Finished chains only live in the store.
		_, err := e.opts.Store.Get(ctx, sfcID)
		return err
	}
	if ent.inst.Status != domain.SFCActive {
		e.mu.Unlock()
		return apperrors.ErrSFCNotActivef(sfcID, string(ent.inst.Status))
	}
	ent.req.Status = domain.RequestCompleted
	ent.inst.Status = domain.SFCCompleted
	ent.inst.EndTime = &now
	rules := append([]string(nil), ent.inst.FlowRuleIDs...)
	hops := e.allocatedHopsLocked(ent.inst)
	rec := e.recordLocked(sfcID)
	delete(e.live, sfcID)
	e.mu.Unlock()

	for _, id := range rules {
		e.flows.RemoveFlow(id)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		e.release(ctx, hops[i].vnfType, hops[i].instanceID)
	}
	e.cancelExpiry(sfcID)
	e.persist(ctx, rec)

	e.log.Info("SFC completed",
		zap.String("sfc_id", sfcID),
		zap.Int("rules_removed", len(rules)),
	)
	e.opts.Dispatcher.Publish(context.WithoutCancel(ctx), domain.EventSFCCompleted, domain.AggregateSFC, sfcID, sfcPayload(rec.Instance))
	return nil
}

func (e *Engine) cancelExpiry(sfcID string) {
	e.schedMu.RLock()
	s := e.scheduler
	e.schedMu.RUnlock()
	if c, ok := s.(interface{ Cancel(string) }); ok {
		c.Cancel(sfcID)
	}
}

// Get returns a chain and its request.
func (e *Engine) Get(ctx context.Context, sfcID string) (domain.SFCRecord, error) {
	e.mu.Lock()
	if _, ok := e.live[sfcID]; ok {
		rec := e.recordLocked(sfcID)
		e.mu.Unlock()
		return rec, nil
	}
	e.mu.Unlock()
	return e.opts.Store.Get(ctx, sfcID)
}

// List returns chains oldest first, optionally filtered by status.
func (e *Engine) List(ctx context.Context, f store.Filter) ([]domain.SFCRecord, error) {
	return e.opts.Store.List(ctx, f)
}

// Stats summarizes allocation outcomes since start.
func (e *Engine) Stats() domain.SFCStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := domain.SFCStats{
		Total:      e.total,
		Successful: e.successful,
		Failed:     e.failed,
		OverBudget: e.overBudget,
	}
	for _, ent := range e.live {
		if ent.inst.Status == domain.SFCActive {
			s.Active++
		}
	}
	if e.total > 0 {
		s.AcceptanceRatio = float64(e.successful) / float64(e.total)
	}
	if e.successful > 0 {
		s.AvgAllocationMs = e.allocMsSum / float64(e.successful)
	}
	return s
}

// Pending returns the number of chains being allocated.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// InUse reports whether a live chain references the instance.
func (e *Engine) InUse(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs[instanceID] > 0
}

// BeginRetire vetoes removal of referenced instances and otherwise keeps
// the instance from being pinned until EndRetire.
func (e *Engine) BeginRetire(instanceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs[instanceID] > 0 {
		return apperrors.ErrInstanceInUsef(instanceID)
	}
	e.retiring[instanceID]++
	return nil
}

// EndRetire undoes BeginRetire.
func (e *Engine) EndRetire(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retiring[instanceID] <= 1 {
		delete(e.retiring, instanceID)
		return
	}
	e.retiring[instanceID]--
}

// Restore fails chains a previous process left ALLOCATING or ACTIVE. Their
// instances and rules did not survive the restart.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	n := 0
	for _, status := range []domain.SFCStatus{domain.SFCAllocating, domain.SFCActive} {
		recs, err := e.opts.Store.List(ctx, store.Filter{Status: status})
		if err != nil {
			return n, err
		}
		now := time.Now()
		for _, rec := range recs {
			rec.Request.Status = domain.RequestFailed
			rec.Instance.Status = domain.SFCFailed
			rec.Instance.FailureReason = "control plane restarted"
			rec.Instance.EndTime = &now
			if err := e.opts.Store.Save(ctx, rec); err != nil {
				return n, err
			}
			n++
		}
	}
	if n > 0 {
		e.log.Info("Failed chains left over from a previous run", zap.Int("count", n))
	}
	return n, nil
}

func (e *Engine) pin(instanceID string, own bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retiring[instanceID] > 0 {
		return false
	}
	e.refs[instanceID]++
	if own {
		e.owned[instanceID] = true
	}
	return true
}

// release drops one reference and retires the instance when the engine
// created it and nothing references it any more.
func (e *Engine) release(ctx context.Context, vnfType domain.VNFType, instanceID string) {
	e.mu.Lock()
	e.refs[instanceID]--
	if e.refs[instanceID] <= 0 {
		delete(e.refs, instanceID)
	}
	retire := e.refs[instanceID] == 0 && e.owned[instanceID]
	if retire {
		delete(e.owned, instanceID)
	}
	e.mu.Unlock()

	if retire {
		e.retire(ctx, vnfType, instanceID)
	}
}

func (e *Engine) retire(ctx context.Context, vnfType domain.VNFType, instanceID string) {
	run := func(ctx context.Context) {
		if _, err := e.scaler.ScaleIn(ctx, vnfType, instanceID); err != nil {
			e.log.Warn("Failed to retire chain instance",
				zap.String("vnf_type", string(vnfType)),
				zap.String("instance_id", instanceID),
				zap.Error(err),
			)
		}
	}
	if e.opts.Pools != nil {
		if err := e.opts.Pools.SubmitDetached(worker.PoolGeneral, run); err == nil {
			return
		}
	}
	run(context.WithoutCancel(ctx))
}

func (e *Engine) persist(ctx context.Context, rec domain.SFCRecord) {
	if err := e.opts.Store.Save(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Error("Failed to persist SFC record",
			zap.String("sfc_id", rec.Instance.ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) notify(ctx context.Context, eventType domain.EventType, inst *domain.SFCInstance, success bool, d time.Duration) {
	if e.opts.Observer != nil {
		e.opts.Observer.ObserveAllocation(inst.RequestType, success, d)
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	e.log.Info("SFC allocation finished",
		zap.String("sfc_id", inst.ID),
		zap.String("request_type", string(inst.RequestType)),
		zap.String("outcome", outcome),
		zap.Float64("allocation_ms", inst.AllocationMs),
	)
	e.opts.Dispatcher.Publish(context.WithoutCancel(ctx), eventType, domain.AggregateSFC, inst.ID, sfcPayload(inst))
}

type hop struct {
	vnfType    domain.VNFType
	instanceID string
}

// allocatedHopsLocked returns the allocated hops in chain order.
func (e *Engine) allocatedHopsLocked(inst *domain.SFCInstance) []hop {
	out := make([]hop, 0, len(inst.AllocatedVNFs))
	for _, t := range inst.Chain {
		if id, ok := inst.AllocatedVNFs[t]; ok {
			out = append(out, hop{vnfType: t, instanceID: id})
		}
	}
	return out
}

func (e *Engine) recordLocked(sfcID string) domain.SFCRecord {
	ent := e.live[sfcID]
	return domain.SFCRecord{Request: ent.req.Clone(), Instance: ent.inst.Clone()}
}

func sfcPayload(inst *domain.SFCInstance) domain.SFCPayload {
	return domain.SFCPayload{
		SFCID:        inst.ID,
		RequestType:  inst.RequestType,
		Chain:        inst.Chain,
		Reason:       inst.FailureReason,
		AllocationMs: inst.AllocationMs,
	}
}

func msSince(start, now time.Time) float64 {
	return float64(now.Sub(start).Microseconds()) / 1000
}

