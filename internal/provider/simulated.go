package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sri0013/vnf-project/internal/domain"
)

const simulatedScheme = "sim://"

// Load is a synthetic load level reported by simulated units.
type Load struct {
	CPUPct    float64 `json:"cpu_pct"`
	MemPct    float64 `json:"mem_pct"`
	LatencyMs float64 `json:"latency_ms"`
}

// SimulatedOptions configures a SimulatedRuntime.
type SimulatedOptions struct {
	// StartupDelay is how long a new unit fails health checks.
	StartupDelay time.Duration
	Baseline     Load
}

type simUnit struct {
	unit      Unit
	load      *Load // per-unit override
	unhealthy bool
	packets   uint64
}

// SimulatedRuntime implements Backend in process, for development and tests.
// Units are addressed as sim://<id> and report configurable synthetic load.
type SimulatedRuntime struct {
	mu sync.RWMutex

	opts       SimulatedOptions
	units      map[string]*simUnit
	loads      map[domain.VNFType]Load
	createErr  map[domain.VNFType]error
	sickOnBoot map[domain.VNFType]bool
	created    int
	terminated int
}

// NewSimulatedRuntime creates a SimulatedRuntime.
func NewSimulatedRuntime(opts SimulatedOptions) *SimulatedRuntime {
	return &SimulatedRuntime{
		opts:       opts,
		units:      make(map[string]*simUnit),
		loads:      make(map[domain.VNFType]Load),
		createErr:  make(map[domain.VNFType]error),
		sickOnBoot: make(map[domain.VNFType]bool),
	}
}

func (s *SimulatedRuntime) Name() string { return "simulated" }

func (s *SimulatedRuntime) Create(ctx context.Context, vnfType domain.VNFType) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.createErr[vnfType]; err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s-%s", strings.ReplaceAll(string(vnfType), "_", "-"), uuid.NewString()[:8])
	u := &simUnit{
		unit: Unit{
			ID:        id,
			VNFType:   vnfType,
			Address:   simulatedScheme + id,
			CreatedAt: time.Now(),
		},
		unhealthy: s.sickOnBoot[vnfType],
	}
	s.units[id] = u
	s.created++
	out := u.unit
	return &out, nil
}

// Terminate is idempotent.
func (s *SimulatedRuntime) Terminate(_ context.Context, unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unitID]; ok {
		delete(s.units, unitID)
		s.terminated++
	}
	return nil
}

func (s *SimulatedRuntime) CheckHealth(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.lookup(address)
	if err != nil {
		return err
	}
	if u.unhealthy {
		return fmt.Errorf("unit %s is unhealthy", u.unit.ID)
	}
	if time.Since(u.unit.CreatedAt) < s.opts.StartupDelay {
		return fmt.Errorf("unit %s is starting", u.unit.ID)
	}
	return nil
}

func (s *SimulatedRuntime) FetchMetrics(ctx context.Context, address string) (*domain.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.lookup(address)
	if err != nil {
		return nil, err
	}
	if u.unhealthy {
		return nil, fmt.Errorf("unit %s does not answer", u.unit.ID)
	}

	load := s.opts.Baseline
	if l, ok := s.loads[u.unit.VNFType]; ok {
		load = l
	}
	if u.load != nil {
		load = *u.load
	}
	u.packets += 100

	return &domain.MetricSample{
		InstanceID:       u.unit.ID,
		CPUPct:           load.CPUPct,
		MemPct:           load.MemPct,
		LatencyMs:        load.LatencyMs,
		PacketsProcessed: u.packets,
		ObservedAt:       time.Now(),
	}, nil
}

// SetLoad sets the load reported by every unit of a type without an override.
func (s *SimulatedRuntime) SetLoad(vnfType domain.VNFType, load Load) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[vnfType] = load
}

// SetUnitLoad overrides the load of a single unit.
func (s *SimulatedRuntime) SetUnitLoad(unitID string, load Load) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return fmt.Errorf("unit %s not found", unitID)
	}
	u.load = &load
	return nil
}

// SetUnitHealthy flips the health of a running unit.
func (s *SimulatedRuntime) SetUnitHealthy(unitID string, healthy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return fmt.Errorf("unit %s not found", unitID)
	}
	u.unhealthy = !healthy
	return nil
}

// FailCreate makes Create fail for a type. A nil err clears the failure.
func (s *SimulatedRuntime) FailCreate(vnfType domain.VNFType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.createErr, vnfType)
		return
	}
	s.createErr[vnfType] = err
}

// FailHealth makes units of a type created from now on never pass health checks.
func (s *SimulatedRuntime) FailHealth(vnfType domain.VNFType, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sickOnBoot[vnfType] = fail
}

// Units returns the running units sorted by creation time.
func (s *SimulatedRuntime) Units() []Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u.unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats returns how many units were created and terminated so far.
func (s *SimulatedRuntime) Stats() (created, terminated int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, s.terminated
}

// caller holds s.mu.
func (s *SimulatedRuntime) lookup(address string) (*simUnit, error) {
	id := strings.TrimPrefix(address, simulatedScheme)
	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("no simulated unit at %s", address)
	}
	return u, nil
}
