package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
)

// HealthTarget is the instance registry as seen by the health checker.
type HealthTarget interface {
	ListAll() []domain.Instance
	MarkHealth(id string, healthy bool, at time.Time) (domain.Instance, bool, error)
}

// HealthChecker periodically probes every ACTIVE or UNHEALTHY instance and
// flips its status in the registry. DRAINING and REMOVED instances are left
// to the lifecycle manager.
type HealthChecker struct {
	target     HealthTarget
	prober     Prober
	pool       *worker.Pool
	dispatcher *domain.EventDispatcher
	interval   time.Duration
	timeout    time.Duration
	log        *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewHealthChecker creates a HealthChecker. pool may be nil, in which case
// probes run on the checker goroutine.
func NewHealthChecker(target HealthTarget, prober Prober, pool *worker.Pool, dispatcher *domain.EventDispatcher, interval, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		target:     target,
		prober:     prober,
		pool:       pool,
		dispatcher: dispatcher,
		interval:   interval,
		timeout:    timeout,
		log:        logger.Named("health"),
		stopCh:     make(chan struct{}),
	}
}

// CheckInstance probes one instance and records the result.
// It reports whether the instance's status changed.
func (c *HealthChecker) CheckInstance(ctx context.Context, inst domain.Instance) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.prober.CheckHealth(probeCtx, inst.Address)
	cancel()

	healthy := err == nil
	updated, changed, markErr := c.target.MarkHealth(inst.ID, healthy, time.Now())
	if markErr != nil {
		// Removed or drained while the probe was in flight.
		return false
	}
	if !changed {
		return false
	}

	if healthy {
		c.log.Info("Instance recovered",
			zap.String("instance_id", inst.ID),
			zap.String("vnf_type", string(inst.VNFType)),
		)
	} else {
		c.log.Warn("Instance failed health check",
			zap.String("instance_id", inst.ID),
			zap.String("vnf_type", string(inst.VNFType)),
			zap.Error(err),
		)
	}
	c.dispatcher.Publish(ctx, domain.EventInstanceHealthChanged, domain.AggregateInstance, inst.ID, domain.InstancePayload{
		InstanceID: updated.ID,
		VNFType:    updated.VNFType,
		Status:     updated.Status,
		Address:    updated.Address,
	})
	return true
}

// CheckAll probes all checkable instances and waits for the results.
func (c *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, inst := range c.target.ListAll() {
		if inst.Status != domain.InstanceActive && inst.Status != domain.InstanceUnhealthy {
			continue
		}
		inst := inst
		if c.pool == nil {
			c.CheckInstance(ctx, inst)
			continue
		}
		wg.Add(1)
		// Submitted detached from ctx so a queued task always runs and
		// releases wg; the probe itself still honours ctx.
		if err := c.pool.Submit(context.WithoutCancel(ctx), func(context.Context) {
			defer wg.Done()
			c.CheckInstance(ctx, inst)
		}); err != nil {
			wg.Done()
			c.log.Debug("Health probe not scheduled",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
		}
	}
	wg.Wait()
}

// Start begins periodic health checking.
// nolint:naked-goroutine // health checker ticker loop; doesn't fit worker pool pattern.
func (c *HealthChecker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts periodic health checking. It may be called more than once.
func (c *HealthChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
