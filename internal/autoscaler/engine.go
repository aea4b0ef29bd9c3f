package autoscaler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/forecast"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/policy"
)

// State is the per-type position in IDLE → DECIDING → ACTION_IN_FLIGHT → IDLE.
type State string

const (
	StateIdle           State = "IDLE"
	StateDeciding       State = "DECIDING"
	StateActionInFlight State = "ACTION_IN_FLIGHT"
)

// Trigger values recorded on scaling events.
const (
	TriggerAutomatic = "automatic"
	TriggerManual    = "manual"
)

// Aggregates is the metrics aggregator as used by the engine. The engine only
// reads results; polling runs on the aggregator's own loop.
type Aggregates interface {
	Latest(vnfType domain.VNFType) (domain.AggregatedMetric, bool)
	History(vnfType domain.VNFType, metric domain.MetricName) []float64
	Samples(vnfType domain.VNFType) map[string]domain.MetricSample
}

// Scaler is the lifecycle manager as used by the engine.
type Scaler interface {
	ScaleOut(ctx context.Context, vnfType domain.VNFType) (domain.Instance, error)
	ScaleIn(ctx context.Context, vnfType domain.VNFType, id string) (bool, error)
	Candidates(vnfType domain.VNFType) []domain.Instance
	SelectForRemoval(candidates []domain.Instance, samples map[string]domain.MetricSample) (domain.Instance, bool)
}

// Counter counts ACTIVE instances.
type Counter interface {
	CountActive(vnfType domain.VNFType) int
}

// Detacher runs work that must outlive the caller. *worker.Pools satisfies it.
type Detacher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// PinChecker reports instances that must not be scaled in, e.g. because a
// live service chain routes through them.
type PinChecker interface {
	InUse(instanceID string) bool
}

// Config configures an Engine.
type Config struct {
	Types               []domain.VNFType
	Bounds              func(vnfType domain.VNFType) (minN, maxN int)
	Thresholds          Thresholds
	ConfidenceThreshold float64
	Interval            time.Duration
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Forecaster forecast.Provider
	Policy     policy.Provider
	Pins       PinChecker
	// Pending returns the number of SFC requests being allocated.
	Pending func() int
	// Pool runs the per-type evaluations of a tick.
	Pool *worker.Pool
	// Detach runs manual actions started by TriggerAsync.
	Detach     Detacher
	Dispatcher *domain.EventDispatcher
}

type typeState struct {
	state       State
	last        Result
	lastError   string
	evaluatedAt time.Time
	actedAt     time.Time
}

// Status is the externally visible state of one type.
type Status struct {
	VNFType      domain.VNFType `json:"vnf_type"`
	State        State          `json:"state"`
	LastDecision Decision       `json:"last_decision,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	EvaluatedAt  time.Time      `json:"evaluated_at,omitempty"`
	ActedAt      time.Time      `json:"acted_at,omitempty"`
}

// Engine runs the scaling decision loop.
type Engine struct {
	aggregates Aggregates
	scaler     Scaler
	counter    Counter
	cfg        Config
	opts       Options
	log        *zap.Logger

	mu     sync.Mutex
	states map[domain.VNFType]*typeState
}

// NewEngine creates an Engine. Missing forecaster and policy default to
// Unavailable and Wait.
func NewEngine(aggregates Aggregates, scaler Scaler, counter Counter, cfg Config, opts Options) *Engine {
	if opts.Forecaster == nil {
		opts.Forecaster = forecast.Unavailable{}
	}
	if opts.Policy == nil {
		opts.Policy = policy.Wait{}
	}
	if cfg.Bounds == nil {
		cfg.Bounds = func(domain.VNFType) (int, int) { return 1, 10 }
	}
	e := &Engine{
		aggregates: aggregates,
		scaler:     scaler,
		counter:    counter,
		cfg:        cfg,
		opts:       opts,
		log:        logger.Named("autoscaler"),
		states:     make(map[domain.VNFType]*typeState),
	}
	for _, t := range cfg.Types {
		e.states[t] = &typeState{state: StateIdle}
	}
	return e
}

// Evaluate gathers the inputs for a type, decides and executes the decision.
// It returns ActionConflict when the type is not idle.
func (e *Engine) Evaluate(ctx context.Context, vnfType domain.VNFType) (Result, error) {
	return e.evaluate(ctx, vnfType, e.recommend(ctx))
}

func (e *Engine) evaluate(ctx context.Context, vnfType domain.VNFType, rec policy.Recommendation) (Result, error) {
	if !e.acquire(vnfType, StateDeciding) {
		return Result{}, apperrors.ErrActionConflictf(string(vnfType))
	}

	in := e.input(ctx, vnfType, rec)
	res := Decide(in)
	e.recordDecision(vnfType, res)

	if res.Decision == DecisionMaintain {
		e.release(vnfType, nil)
		return res, nil
	}

	e.setState(vnfType, StateActionInFlight)
	err := e.execute(ctx, vnfType, res, TriggerAutomatic)
	e.release(vnfType, err)
	return res, err
}

// Trigger runs a manual scaling action through the same guard and bounds
// as automatic ones and waits for it.
func (e *Engine) Trigger(ctx context.Context, vnfType domain.VNFType, decision Decision) error {
	res, err := e.begin(vnfType, decision)
	if err != nil {
		return err
	}
	err = e.execute(ctx, vnfType, res, TriggerManual)
	e.release(vnfType, err)
	return err
}

// TriggerAsync checks the guard and bounds like Trigger, then runs the action
// on the general pool. The type stays ACTION_IN_FLIGHT until it completes.
// Without a Detacher the action runs before TriggerAsync returns.
func (e *Engine) TriggerAsync(ctx context.Context, vnfType domain.VNFType, decision Decision) error {
	res, err := e.begin(vnfType, decision)
	if err != nil {
		return err
	}
	task := func(taskCtx context.Context) {
		e.release(vnfType, e.execute(taskCtx, vnfType, res, TriggerManual))
	}
	if e.opts.Detach == nil {
		task(context.WithoutCancel(ctx))
		return nil
	}
	if err := e.opts.Detach.SubmitDetached(worker.PoolGeneral, task); err != nil {
		e.release(vnfType, err)
		return apperrors.Wrap(err, apperrors.CodeInternalError, "scaling action could not be scheduled", http.StatusServiceUnavailable)
	}
	return nil
}

// begin validates a manual action and leaves the type ACTION_IN_FLIGHT.
func (e *Engine) begin(vnfType domain.VNFType, decision Decision) (Result, error) {
	if decision != DecisionScaleOut && decision != DecisionScaleIn {
		return Result{}, apperrors.ErrInvalidRequestFieldf("action")
	}
	if !e.acquire(vnfType, StateActionInFlight) {
		return Result{}, apperrors.ErrActionConflictf(string(vnfType))
	}

	minN, maxN := e.cfg.Bounds(vnfType)
	active := e.counter.CountActive(vnfType)
	var err error
	switch {
	case decision == DecisionScaleOut && active >= maxN:
		err = apperrors.ErrScalingBoundf(string(vnfType), "maximum", maxN)
	case decision == DecisionScaleIn && active <= minN:
		err = apperrors.ErrScalingBoundf(string(vnfType), "minimum", minN)
	}
	if err != nil {
		// Nothing ran, so the last action time stays as it was.
		e.mu.Lock()
		s := e.states[vnfType]
		s.state = StateIdle
		s.lastError = err.Error()
		e.mu.Unlock()
		return Result{}, err
	}

	res := Result{Decision: decision, Reason: "manual"}
	e.recordDecision(vnfType, res)
	return res, nil
}

func (e *Engine) input(ctx context.Context, vnfType domain.VNFType, rec policy.Recommendation) Input {
	minN, maxN := e.cfg.Bounds(vnfType)
	in := Input{
		VNFType:             vnfType,
		Active:              e.counter.CountActive(vnfType),
		Min:                 minN,
		Max:                 maxN,
		Thresholds:          e.cfg.Thresholds,
		ConfidenceThreshold: e.cfg.ConfidenceThreshold,
		Recommendation:      rec,
		Forecasts:           make(map[domain.MetricName]forecast.Forecast, len(domain.AllMetrics)),
	}
	if agg, ok := e.aggregates.Latest(vnfType); ok && e.observedSinceAction(vnfType, agg) {
		in.Aggregate = &agg
	}
	for _, m := range domain.AllMetrics {
		if f, ok := e.opts.Forecaster.Predict(ctx, e.aggregates.History(vnfType, m)); ok {
			in.Forecasts[m] = f
		}
	}
	return in
}

// observedSinceAction reports whether agg was taken after the last action on
// the type, so one breach does not trigger a second action before it shows.
func (e *Engine) observedSinceAction(vnfType domain.VNFType, agg domain.AggregatedMetric) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[vnfType]
	return !ok || agg.ObservedAt.After(s.actedAt)
}

// Snapshot captures the state the policy provider decides on.
func (e *Engine) Snapshot(context.Context) policy.Snapshot {
	snap := policy.Snapshot{
		Aggregates: make(map[domain.VNFType]domain.AggregatedMetric, len(e.cfg.Types)),
		Instances:  make(map[domain.VNFType]int, len(e.cfg.Types)),
		Timestamp:  time.Now(),
	}
	for _, t := range e.cfg.Types {
		snap.Instances[t] = e.counter.CountActive(t)
		if agg, ok := e.aggregates.Latest(t); ok {
			snap.Aggregates[t] = agg
		}
	}
	if e.opts.Pending != nil {
		snap.PendingRequests = e.opts.Pending()
	}
	return snap
}

// recommend asks the policy provider once. Failures fall back to WAIT.
func (e *Engine) recommend(ctx context.Context) policy.Recommendation {
	rec, err := e.opts.Policy.Recommend(ctx, e.Snapshot(ctx))
	if err != nil {
		e.log.Warn("Policy provider unavailable, falling back to thresholds", zap.Error(err))
		return policy.Recommendation{Action: policy.ActionWait}
	}
	return rec
}

func (e *Engine) execute(ctx context.Context, vnfType domain.VNFType, res Result, trigger string) error {
	payload := domain.ScalingPayload{
		VNFType: vnfType,
		Action:  string(res.Decision),
		Trigger: trigger,
	}

	var err error
	switch res.Decision {
	case DecisionScaleOut:
		var inst domain.Instance
		inst, err = e.scaler.ScaleOut(ctx, vnfType)
		payload.InstanceID = inst.ID
	case DecisionScaleIn:
		victim, ok := e.selectVictim(vnfType)
		if !ok {
			e.log.Info("Scale in skipped: every instance is pinned",
				zap.String("vnf_type", string(vnfType)),
			)
			return nil
		}
		payload.InstanceID = victim.ID
		var removed bool
		removed, err = e.scaler.ScaleIn(ctx, vnfType, victim.ID)
		if err == nil && !removed {
			// Lost a race with another remover; nothing to do.
			return nil
		}
	}

	if err != nil {
		payload.Error = err.Error()
		e.log.Error("Scaling action failed",
			zap.String("vnf_type", string(vnfType)),
			zap.String("action", string(res.Decision)),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		e.opts.Dispatcher.Publish(ctx, domain.EventScalingFailed, domain.AggregateVNFType, string(vnfType), payload)
		return err
	}

	e.log.Info("Scaling action completed",
		zap.String("vnf_type", string(vnfType)),
		zap.String("action", string(res.Decision)),
		zap.String("trigger", trigger),
		zap.String("instance_id", payload.InstanceID),
		zap.String("reason", res.Reason),
	)
	e.opts.Dispatcher.Publish(ctx, domain.EventScalingCompleted, domain.AggregateVNFType, string(vnfType), payload)
	return nil
}

func (e *Engine) selectVictim(vnfType domain.VNFType) (domain.Instance, bool) {
	var candidates []domain.Instance
	for _, inst := range e.scaler.Candidates(vnfType) {
		if e.opts.Pins != nil && e.opts.Pins.InUse(inst.ID) {
			continue
		}
		candidates = append(candidates, inst)
	}
	return e.scaler.SelectForRemoval(candidates, e.aggregates.Samples(vnfType))
}

// Tick starts one evaluation per idle type, each in its own pool task, and
// returns without waiting for them. A type whose evaluation or action is
// still in flight is skipped until a later tick. Without a pool the
// evaluations run inline.
func (e *Engine) Tick(ctx context.Context) {
	rec := e.recommend(ctx)

	for _, t := range e.cfg.Types {
		t := t
		if e.State(t) != StateIdle {
			e.log.Debug("Evaluation skipped: type busy",
				zap.String("vnf_type", string(t)),
			)
			continue
		}
		run := func(taskCtx context.Context) {
			if _, err := e.evaluate(taskCtx, t, rec); err != nil && apperrors.HasCode(err, apperrors.CodeActionConflict) {
				e.log.Debug("Evaluation skipped: action in flight",
					zap.String("vnf_type", string(t)),
				)
			}
		}
		if e.opts.Pool == nil {
			run(ctx)
			continue
		}
		if err := e.opts.Pool.Submit(ctx, run); err != nil {
			e.log.Warn("Evaluation not scheduled",
				zap.String("vnf_type", string(t)),
				zap.Error(err),
			)
		}
	}
}

// Run ticks every Interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Status returns the state of every configured type, sorted by type.
func (e *Engine) Status() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Status, 0, len(e.states))
	for t, s := range e.states {
		out = append(out, Status{
			VNFType:      t,
			State:        s.state,
			LastDecision: s.last.Decision,
			Reason:       s.last.Reason,
			LastError:    s.lastError,
			EvaluatedAt:  s.evaluatedAt,
			ActedAt:      s.actedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VNFType < out[j].VNFType })
	return out
}

// State returns the current state of a type.
func (e *Engine) State(vnfType domain.VNFType) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[vnfType]; ok {
		return s.state
	}
	return StateIdle
}

// acquire moves an IDLE type to `to`; it fails if the type is busy.
func (e *Engine) acquire(vnfType domain.VNFType, to State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[vnfType]
	if !ok {
		s = &typeState{state: StateIdle}
		e.states[vnfType] = s
	}
	if s.state != StateIdle {
		return false
	}
	s.state = to
	return true
}

func (e *Engine) setState(vnfType domain.VNFType, to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[vnfType].state = to
}

func (e *Engine) recordDecision(vnfType domain.VNFType, res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.states[vnfType]
	s.last = res
	s.evaluatedAt = time.Now()
}

func (e *Engine) release(vnfType domain.VNFType, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.states[vnfType]
	s.state = StateIdle
	if s.last.Decision != DecisionMaintain && s.last.Decision != "" {
		s.actedAt = time.Now()
	}
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}
