// Package app is the composition root. Bootstrap wires every component;
// it holds no orchestration logic of its own.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/aggregator"
	"github.com/sri0013/vnf-project/internal/api/handlers"
	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/autoscaler"
	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/flowtable"
	"github.com/sri0013/vnf-project/internal/forecast"
	"github.com/sri0013/vnf-project/internal/infrastructure"
	"github.com/sri0013/vnf-project/internal/jobs"
	"github.com/sri0013/vnf-project/internal/lifecycle"
	"github.com/sri0013/vnf-project/internal/observability"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
	"github.com/sri0013/vnf-project/internal/policy"
	"github.com/sri0013/vnf-project/internal/provider"
	"github.com/sri0013/vnf-project/internal/registry"
	"github.com/sri0013/vnf-project/internal/sfc"
	"github.com/sri0013/vnf-project/internal/store"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Metrics *observability.Metrics

	Types      []domain.VNFType
	Registry   *registry.Registry
	Flows      *flowtable.Table
	Lifecycle  *lifecycle.Manager
	Aggregator *aggregator.Aggregator
	Autoscaler *autoscaler.Engine
	Chains     *sfc.Engine
	Health     *provider.HealthChecker
	// Timers is set when lease expiry runs in process.
	Timers *sfc.TimerScheduler

	shutdownTracing func(context.Context) error

	loopCancel context.CancelFunc
	loops      sync.WaitGroup
}

// Bootstrap initializes all dependencies using manual DI. On error every
// component created so far is released.
func Bootstrap(ctx context.Context, cfg *config.Config) (_ *Application, err error) {
	a := &Application{Config: cfg}
	defer func() {
		if err != nil {
			a.Shutdown()
		}
	}()

	a.shutdownTracing, err = observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.Pools, err = worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		ProbePoolSize:   cfg.Worker.ProbePoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics, err = observability.NewMetrics(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a.Types = domain.VNFTypes(cfg.Orchestration.VNFTypes)
	a.Registry = registry.New()
	a.Flows = flowtable.NewTable(a.Registry, a.Metrics)
	balancer := flowtable.NewLoadBalancer(a.Registry)

	dispatcher := domain.NewEventDispatcher()
	dispatcher.RegisterAll(a.Metrics.InstanceEventHandler(a.Registry.CountActive),
		domain.EventInstanceRegistered,
		domain.EventInstanceHealthChanged,
		domain.EventInstanceDraining,
		domain.EventInstanceRemoved,
	)
	dispatcher.RegisterAll(a.Metrics.ScalingEventHandler(),
		domain.EventScalingCompleted,
		domain.EventScalingFailed,
	)
	dispatcher.RegisterAll(eventLogHandler(),
		domain.EventSFCActivated,
		domain.EventSFCFailed,
		domain.EventSFCCompleted,
	)

	runtime, prober, err := newRuntime(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("VNF runtime selected", zap.String("runtime", runtime.Name()))

	th := cfg.Orchestration.Thresholds
	ru := cfg.RollingUpdate
	a.Lifecycle = lifecycle.NewManager(a.Registry, a.Flows, runtime, prober, dispatcher, lifecycle.Config{
		HealthCheckTimeout: ru.HealthCheckTimeout,
		HealthPollInterval: ru.HealthPollInterval,
		DrainTimeout:       ru.DrainTimeout,
		ProbeTimeout:       ru.ProbeTimeout,
		LatencyUpper:       th.LatencyUpper,
	})

	a.Aggregator = aggregator.New(a.Registry, prober, a.Pools.Probe, a.Metrics, aggregator.Config{
		Types:        a.Types,
		WindowSize:   cfg.Forecasting.WindowSize,
		ProbeTimeout: ru.ProbeTimeout,
		Interval:     cfg.Orchestration.MetricsInterval,
	})
	a.Health = provider.NewHealthChecker(a.Registry, prober, a.Pools.Probe, dispatcher,
		cfg.Orchestration.HealthInterval, ru.ProbeTimeout)

	forecaster := newForecaster(cfg.Forecasting)
	advisor := newPolicy(cfg.Policy)

	catalog, err := newCatalog(cfg, a.Types)
	if err != nil {
		return nil, err
	}

	var chainStore store.Store = store.NewMemoryStore()
	if cfg.Database.Enabled() {
		a.DB, err = infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := a.DB.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		chainStore = a.DB.Store
	}

	// The autoscaler and the SFC engine reference each other: chains pin
	// instances against scale-in, and allocation consults the policy with
	// the autoscaler's view. The closure breaks the cycle.
	a.Chains = sfc.NewEngine(catalog, balancer, a.Lifecycle, a.Flows, sfc.Config{
		DefaultPriority:        cfg.SFC.DefaultPriority,
		DefaultServiceDuration: cfg.SFC.DefaultServiceDuration,
		Known:                  a.Types,
	}, sfc.Options{
		Policy: advisor,
		Snapshot: func(ctx context.Context) policy.Snapshot {
			return a.Autoscaler.Snapshot(ctx)
		},
		Store:      chainStore,
		Pools:      a.Pools,
		Dispatcher: dispatcher,
		Observer:   a.Metrics,
	})
	a.Lifecycle.SetGuard(a.Chains)

	a.Autoscaler = autoscaler.NewEngine(a.Aggregator, a.Lifecycle, a.Registry, autoscaler.Config{
		Types: a.Types,
		Bounds: func(t domain.VNFType) (int, int) {
			return cfg.Orchestration.Bounds(string(t))
		},
		Thresholds: autoscaler.Thresholds{
			CPUUpper:     th.CPUUpper,
			CPULower:     th.CPULower,
			MemoryUpper:  th.MemoryUpper,
			MemoryLower:  th.MemoryLower,
			LatencyUpper: th.LatencyUpper,
			LatencyLower: th.LatencyLower,
		},
		ConfidenceThreshold: cfg.Forecasting.ConfidenceThreshold,
		Interval:            cfg.Orchestration.EvaluationInterval,
	}, autoscaler.Options{
		Forecaster: forecaster,
		Policy:     advisor,
		Pins:       a.Chains,
		Pending:    a.Chains.Pending,
		Pool:       a.Pools.General,
		Detach:     a.Pools,
		Dispatcher: dispatcher,
	})

	if a.DB != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, jobs.NewSFCExpireWorker(a.Chains))
		if err := a.DB.InitRiverClient(workers, cfg.River); err != nil {
			return nil, fmt.Errorf("init river workers: %w", err)
		}
		a.Chains.SetScheduler(jobs.NewRiverScheduler(a.DB.RiverClient))
	} else {
		a.Timers = sfc.NewTimerScheduler(a.Chains, a.Pools)
		a.Chains.SetScheduler(a.Timers)
	}

	deps := handlers.ServerDeps{
		Types:      a.Types,
		Runtime:    runtime.Name(),
		Instances:  a.Registry,
		Flows:      a.Flows,
		Balancer:   balancer,
		Lifecycle:  a.Lifecycle,
		Autoscaler: a.Autoscaler,
		Metrics:    a.Aggregator,
		Chains:     a.Chains,
		Pools:      a.Pools,
		Workers:    a.Pools,
	}
	if a.DB != nil {
		deps.DB = a.DB.Pool
	}

	a.Router, err = newRouter(cfg, handlers.NewServer(deps), a.Metrics, middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.TokenTTL,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRuntime returns the configured runtime and the prober for its units.
func newRuntime(cfg *config.Config) (provider.Runtime, provider.Prober, error) {
	rc := cfg.Runtime
	switch rc.Provider {
	case config.RuntimeKubeVirt:
		client, err := provider.NewKubeVirtClusterClient(rc.Kubeconfig)
		if err != nil {
			return nil, nil, fmt.Errorf("init kubevirt client: %w", err)
		}
		rt, err := provider.NewKubeVirtRuntime(client, provider.KubeVirtOptions{
			Namespace:        rc.Namespace,
			ImagePattern:     rc.ImagePattern,
			ProbePort:        rc.ProbePort,
			CPUCores:         rc.CPUCores,
			Memory:           rc.Memory,
			OperationTimeout: rc.OperationTimeout,
			PollInterval:     cfg.RollingUpdate.HealthPollInterval,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init kubevirt runtime: %w", err)
		}
		return rt, provider.NewHTTPProber(cfg.RollingUpdate.ProbeTimeout), nil
	default:
		sim := provider.NewSimulatedRuntime(provider.SimulatedOptions{
			StartupDelay: rc.Simulated.StartupDelay,
			Baseline: provider.Load{
				CPUPct:    rc.Simulated.BaseCPU,
				MemPct:    rc.Simulated.BaseMemory,
				LatencyMs: rc.Simulated.BaseLatency,
			},
		})
		return sim, sim, nil
	}
}

func newForecaster(cfg config.ForecastingConfig) forecast.Provider {
	if !cfg.Enabled {
		return forecast.Unavailable{}
	}
	return forecast.NewLinearTrend(cfg.WindowSize, cfg.Steps)
}

func newPolicy(cfg config.PolicyConfig) policy.Provider {
	if cfg.Provider == config.PolicyHTTP {
		return policy.NewHTTPProvider(cfg.Endpoint, cfg.Timeout)
	}
	return policy.Wait{}
}

func newCatalog(cfg *config.Config, types []domain.VNFType) (*sfc.Catalog, error) {
	if cfg.SFC.CatalogFile != "" {
		cat, err := sfc.LoadCatalogFile(cfg.SFC.CatalogFile, types)
		if err != nil {
			return nil, fmt.Errorf("load sfc catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := sfc.NewCatalog(cfg.SFC, types)
	if err != nil {
		return nil, fmt.Errorf("build sfc catalog: %w", err)
	}
	return cat, nil
}

// eventLogHandler writes chain lifecycle events to the log.
func eventLogHandler() domain.EventHandler {
	log := logger.Named("events")
	return func(_ context.Context, ev *domain.DomainEvent) error {
		log.Info("Domain event",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_type", ev.AggregateType),
			zap.String("aggregate_id", ev.AggregateID),
			zap.ByteString("payload", ev.Payload),
		)
		return nil
	}
}
