package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/observability"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
)

// Start starts all background services: River workers, chain recovery,
// the initial deployment, health checks, metrics polling and the
// autoscaler. Each periodic task runs on its own ticker.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}

	if _, err := a.Chains.Restore(ctx); err != nil {
		return fmt.Errorf("restore sfc records: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.loopCancel = cancel

	if a.Config.Orchestration.InitialDeploy {
		for _, t := range a.Types {
			a.deploy(loopCtx, t)
		}
	}

	a.Health.Start(loopCtx)

	a.goLoop(func() { a.Aggregator.Run(loopCtx) })
	logger.Info("Metrics polling started",
		zap.Duration("interval", a.Config.Orchestration.MetricsInterval),
	)

	if a.Config.Orchestration.AutoscalerEnabled {
		a.goLoop(func() { a.Autoscaler.Run(loopCtx) })
		logger.Info("Autoscaler started",
			zap.Duration("interval", a.Config.Orchestration.EvaluationInterval),
		)
	} else {
		logger.Info("Autoscaler disabled; polling metrics only")
	}
	return nil
}

// deploy brings a type up to its minimum instance count in the background.
func (a *Application) deploy(ctx context.Context, vnfType domain.VNFType) {
	minN, _ := a.Config.Orchestration.Bounds(string(vnfType))
	if minN <= 0 {
		return
	}
	a.goLoop(func() {
		added, err := a.Lifecycle.Provision(ctx, vnfType, minN)
		if err != nil {
			logger.Error("Initial deployment incomplete",
				zap.String("vnf_type", string(vnfType)),
				zap.Int("added", added),
				zap.Error(err),
			)
			return
		}
		logger.Info("Initial deployment done",
			zap.String("vnf_type", string(vnfType)),
			zap.Int("added", added),
		)
	})
}

// nolint:naked-goroutine // control loops and startup provisioning are owned by the application, not a pool.
func (a *Application) goLoop(fn func()) {
	a.loops.Add(1)
	go func() {
		defer a.loops.Done()
		fn()
	}()
}

// Shutdown gracefully shuts down all application components. It is safe on
// a partially bootstrapped Application.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.loopCancel != nil {
		a.loopCancel()
	}
	if a.Health != nil {
		a.Health.Stop()
	}
	a.loops.Wait()

	if a.Timers != nil {
		a.Timers.Stop()
	}
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.shutdownTracing != nil {
		observability.ShutdownWithTimeout(shutdownCtx, a.shutdownTracing)
	}
}
