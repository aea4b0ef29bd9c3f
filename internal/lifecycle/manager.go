// Package lifecycle adds and removes VNF instances: health-gated scale-out
// and drained scale-in. It is the only writer of instance membership besides
// explicit external registration.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/observability"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/provider"
)

// Registry is the instance registry as used by the manager.
type Registry interface {
	Register(inst domain.Instance) error
	Get(id string) (domain.Instance, bool)
	List(vnfType domain.VNFType) []domain.Instance
	Transition(id string, to domain.InstanceStatus, from ...domain.InstanceStatus) (domain.Instance, error)
	Unregister(id string) (domain.Instance, bool)
}

// FlowTable is the flow table as used by the manager.
type FlowTable interface {
	AddFlow(vnfType domain.VNFType, instanceID string, priority int) (domain.FlowRule, error)
	RemoveFlowsForInstance(instanceID string) int
}

// RetireGuard can veto the removal of an instance. BeginRetire must make
// the instance unavailable to new references until EndRetire.
type RetireGuard interface {
	BeginRetire(instanceID string) error
	EndRetire(instanceID string)
}

// Config holds the rolling update timings.
type Config struct {
	HealthCheckTimeout time.Duration
	HealthPollInterval time.Duration
	DrainTimeout       time.Duration
	ProbeTimeout       time.Duration
	// LatencyUpper normalizes latency in the load score.
	LatencyUpper float64
	FlowPriority int
}

// terminateTimeout bounds runtime cleanup that runs detached from the caller.
const terminateTimeout = 30 * time.Second

// Manager performs rolling updates of VNF instances.
type Manager struct {
	registry   Registry
	flows      FlowTable
	runtime    provider.Runtime
	prober     provider.Prober
	dispatcher *domain.EventDispatcher
	cfg        Config
	guard      RetireGuard
	log        *zap.Logger
}

// NewManager creates a Manager.
func NewManager(registry Registry, flows FlowTable, runtime provider.Runtime, prober provider.Prober, dispatcher *domain.EventDispatcher, cfg Config) *Manager {
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = 30 * time.Second
	}
	if cfg.HealthPollInterval <= 0 {
		cfg.HealthPollInterval = 2 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.LatencyUpper <= 0 {
		cfg.LatencyUpper = 1000
	}
	if cfg.FlowPriority <= 0 {
		cfg.FlowPriority = domain.DefaultFlowPriority
	}
	return &Manager{
		registry:   registry,
		flows:      flows,
		runtime:    runtime,
		prober:     prober,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        logger.Named("lifecycle"),
	}
}

// SetGuard installs the guard consulted before every scale-in.
func (m *Manager) SetGuard(g RetireGuard) {
	m.guard = g
}

// ScaleOut creates a unit, waits for it to pass the health gate, registers
// it ACTIVE and adds its flow rule. A unit that never becomes healthy, or
// whose gate is cancelled, is terminated and never registered.
func (m *Manager) ScaleOut(ctx context.Context, vnfType domain.VNFType) (inst domain.Instance, err error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.ScaleOut",
		attribute.String("vnf.type", string(vnfType)),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	unit, err := m.runtime.Create(ctx, vnfType)
	if err != nil {
		m.log.Error("Runtime failed to create instance",
			zap.String("vnf_type", string(vnfType)),
			zap.String("runtime", m.runtime.Name()),
			zap.Error(err),
		)
		return domain.Instance{}, apperrors.ErrCreateFailedf(string(vnfType), err)
	}
	span.SetAttributes(attribute.String("vnf.unit_id", unit.ID))

	if err := m.awaitHealthy(ctx, unit); err != nil {
		m.log.Warn("Instance failed health gate, discarding",
			zap.String("vnf_type", string(vnfType)),
			zap.String("unit_id", unit.ID),
			zap.Duration("waited", time.Since(start)),
			zap.Error(err),
		)
		m.terminateDetached(ctx, unit.ID)
		return domain.Instance{}, apperrors.ErrHealthCheckFailedf(string(vnfType), unit.ID, err)
	}

	now := time.Now()
	inst = domain.Instance{
		ID:                unit.ID,
		VNFType:           vnfType,
		Address:           unit.Address,
		Status:            domain.InstanceActive,
		Managed:           true,
		CreatedAt:         unit.CreatedAt,
		LastHealthCheckAt: now,
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if err := m.registry.Register(inst); err != nil {
		m.terminateDetached(ctx, unit.ID)
		return domain.Instance{}, err
	}
	m.addDefaultFlow(inst)

	m.log.Info("Instance added",
		zap.String("vnf_type", string(vnfType)),
		zap.String("instance_id", inst.ID),
		zap.String("address", inst.Address),
		zap.Duration("duration", time.Since(start)),
	)
	m.dispatcher.Publish(ctx, domain.EventInstanceRegistered, domain.AggregateInstance, inst.ID, instancePayload(inst))
	return inst, nil
}

// RegisterExternal registers a unit the control plane did not create. It is
// added ACTIVE without a health gate and is never terminated on removal.
func (m *Manager) RegisterExternal(ctx context.Context, inst domain.Instance) (domain.Instance, error) {
	inst.Status = domain.InstanceActive
	inst.Managed = false
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	if err := m.registry.Register(inst); err != nil {
		return domain.Instance{}, err
	}
	m.addDefaultFlow(inst)

	m.log.Info("External instance registered",
		zap.String("vnf_type", string(inst.VNFType)),
		zap.String("instance_id", inst.ID),
		zap.String("address", inst.Address),
	)
	m.dispatcher.Publish(ctx, domain.EventInstanceRegistered, domain.AggregateInstance, inst.ID, instancePayload(inst))
	return inst, nil
}

// ScaleIn drains and removes an instance: DRAINING, flow rules removed, drain
// wait, unit terminated, REMOVED, unregistered. It returns false when the
// instance is not registered under vnfType or is already being removed, and
// an error when the guard vetoes the removal.
// Cancelling ctx shortens the drain wait but removal still completes. A
// runtime termination error is returned after the instance has been removed
// from the control plane.
func (m *Manager) ScaleIn(ctx context.Context, vnfType domain.VNFType, id string) (removed bool, err error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.ScaleIn",
		attribute.String("vnf.type", string(vnfType)),
		attribute.String("vnf.instance_id", id),
	)
	defer func() { observability.EndSpan(span, err) }()

	current, ok := m.registry.Get(id)
	if !ok || current.VNFType != vnfType {
		return false, nil
	}
	if m.guard != nil {
		if err := m.guard.BeginRetire(id); err != nil {
			return false, err
		}
		defer m.guard.EndRetire(id)
	}
	inst, err := m.registry.Transition(id, domain.InstanceDraining, domain.InstanceActive, domain.InstanceUnhealthy)
	if err != nil {
		return false, nil
	}
	m.dispatcher.Publish(ctx, domain.EventInstanceDraining, domain.AggregateInstance, id, instancePayload(inst))

	flows := m.flows.RemoveFlowsForInstance(id)
	m.log.Info("Draining instance",
		zap.String("vnf_type", string(vnfType)),
		zap.String("instance_id", id),
		zap.Int("flows_removed", flows),
		zap.Duration("drain_timeout", m.cfg.DrainTimeout),
	)

	if m.cfg.DrainTimeout > 0 {
		timer := time.NewTimer(m.cfg.DrainTimeout)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.log.Info("Drain cut short by cancellation",
				zap.String("instance_id", id),
			)
		}
	}

	var termErr error
	if inst.Managed {
		termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminateTimeout)
		termErr = m.runtime.Terminate(termCtx, id)
		cancel()
		if termErr != nil {
			m.log.Error("Runtime failed to terminate instance",
				zap.String("instance_id", id),
				zap.Error(termErr),
			)
			termErr = fmt.Errorf("terminate %s: %w", id, termErr)
		}
	}

	if removedInst, err := m.registry.Transition(id, domain.InstanceRemoved, domain.InstanceDraining); err == nil {
		inst = removedInst
	}
	m.registry.Unregister(id)
	// A rule can only reference ACTIVE instances at insertion, so nothing
	// new can have appeared; this is a no-op unless a caller raced the CAS.
	m.flows.RemoveFlowsForInstance(id)

	m.log.Info("Instance removed",
		zap.String("vnf_type", string(vnfType)),
		zap.String("instance_id", id),
	)
	m.dispatcher.Publish(context.WithoutCancel(ctx), domain.EventInstanceRemoved, domain.AggregateInstance, id, instancePayload(inst))
	return true, termErr
}

// Provision scales a type out until it has at least n live instances.
// It stops at the first failure.
func (m *Manager) Provision(ctx context.Context, vnfType domain.VNFType, n int) (int, error) {
	added := 0
	for m.liveCount(vnfType) < n {
		if _, err := m.ScaleOut(ctx, vnfType); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Candidates returns the instances of a type that may be scaled in.
func (m *Manager) Candidates(vnfType domain.VNFType) []domain.Instance {
	var out []domain.Instance
	for _, inst := range m.registry.List(vnfType) {
		if inst.Status == domain.InstanceActive || inst.Status == domain.InstanceUnhealthy {
			out = append(out, inst)
		}
	}
	return out
}

// SelectForRemoval picks the least loaded candidate using the configured
// latency normalization.
func (m *Manager) SelectForRemoval(candidates []domain.Instance, samples map[string]domain.MetricSample) (domain.Instance, bool) {
	return SelectForRemoval(candidates, samples, m.cfg.LatencyUpper)
}

func (m *Manager) liveCount(vnfType domain.VNFType) int {
	return len(m.Candidates(vnfType))
}

// awaitHealthy polls the unit's health probe every HealthPollInterval until
// it answers or HealthCheckTimeout elapses.
func (m *Manager) awaitHealthy(ctx context.Context, unit *provider.Unit) error {
	gateCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
	defer cancel()

	ticker := time.NewTicker(m.cfg.HealthPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		probeCtx, probeCancel := context.WithTimeout(gateCtx, m.cfg.ProbeTimeout)
		lastErr = m.prober.CheckHealth(probeCtx, unit.Address)
		probeCancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ticker.C:
		case <-gateCtx.Done():
			if errors.Is(gateCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("not healthy after %s: %w", m.cfg.HealthCheckTimeout, lastErr)
			}
			return gateCtx.Err()
		}
	}
}

func (m *Manager) terminateDetached(ctx context.Context, unitID string) {
	termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminateTimeout)
	defer cancel()
	if err := m.runtime.Terminate(termCtx, unitID); err != nil {
		m.log.Error("Failed to terminate discarded unit",
			zap.String("unit_id", unitID),
			zap.Error(err),
		)
	}
}

func (m *Manager) addDefaultFlow(inst domain.Instance) {
	if _, err := m.flows.AddFlow(inst.VNFType, inst.ID, m.cfg.FlowPriority); err != nil {
		// The health checker may already have flipped the instance.
		m.log.Warn("Default flow rule not added",
			zap.String("instance_id", inst.ID),
			zap.Error(err),
		)
	}
}

func instancePayload(inst domain.Instance) domain.InstancePayload {
	return domain.InstancePayload{
		InstanceID: inst.ID,
		VNFType:    inst.VNFType,
		Status:     inst.Status,
		Address:    inst.Address,
	}
}
