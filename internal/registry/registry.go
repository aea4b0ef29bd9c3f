// Package registry is the authoritative in-memory store of VNF instances.
//
// Every mutation happens under one lock and is compare-and-set style; readers
// always get copies, never live references.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

// Registry holds the instances of every VNF type.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Instance
	byType map[domain.VNFType][]string // insertion order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[string]*domain.Instance),
		byType: make(map[domain.VNFType][]string),
	}
}

// Register adds an instance. The status defaults to ACTIVE.
func (r *Registry) Register(inst domain.Instance) error {
	if inst.ID == "" {
		return apperrors.ErrInvalidRequestFieldf("id")
	}
	if inst.VNFType == "" {
		return apperrors.ErrInvalidRequestFieldf("vnf_type")
	}
	if inst.Status == "" {
		inst.Status = domain.InstanceActive
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[inst.ID]; exists {
		return apperrors.ErrInstanceExistsf(inst.ID)
	}
	r.byID[inst.ID] = &inst
	r.byType[inst.VNFType] = append(r.byType[inst.VNFType], inst.ID)
	return nil
}

// Unregister deletes an instance and returns its last state.
func (r *Registry) Unregister(id string) (domain.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[id]
	if !ok {
		return domain.Instance{}, false
	}
	delete(r.byID, id)

	ids := r.byType[inst.VNFType]
	for i, v := range ids {
		if v == id {
			r.byType[inst.VNFType] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byType[inst.VNFType]) == 0 {
		delete(r.byType, inst.VNFType)
	}
	return *inst, true
}

// Get returns a copy of one instance.
func (r *Registry) Get(id string) (domain.Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.byID[id]
	if !ok {
		return domain.Instance{}, false
	}
	return *inst, true
}

// List returns a snapshot of the instances of a type in registration order.
func (r *Registry) List(vnfType domain.VNFType) []domain.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byType[vnfType]
	out := make([]domain.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.byID[id])
	}
	return out
}

// ListActive returns the ACTIVE instances of a type in registration order.
func (r *Registry) ListActive(vnfType domain.VNFType) []domain.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Instance
	for _, id := range r.byType[vnfType] {
		if inst := r.byID[id]; inst.Status == domain.InstanceActive {
			out = append(out, *inst)
		}
	}
	return out
}

// ListAll returns every instance sorted by type, then registration time.
func (r *Registry) ListAll() []domain.Instance {
	r.mu.RLock()
	out := make([]domain.Instance, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, *inst)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].VNFType != out[j].VNFType {
			return out[i].VNFType < out[j].VNFType
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountActive returns the number of ACTIVE instances of a type.
func (r *Registry) CountActive(vnfType domain.VNFType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.byType[vnfType] {
		if r.byID[id].Status == domain.InstanceActive {
			n++
		}
	}
	return n
}

// Counts returns the ACTIVE count per type for the given types.
func (r *Registry) Counts(types []domain.VNFType) map[domain.VNFType]int {
	out := make(map[domain.VNFType]int, len(types))
	for _, t := range types {
		out[t] = r.CountActive(t)
	}
	return out
}

// MarkHealth records a health probe result. Only ACTIVE and UNHEALTHY
// instances move; DRAINING and REMOVED ones are left alone. It reports
// whether the status changed.
func (r *Registry) MarkHealth(id string, healthy bool, at time.Time) (domain.Instance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[id]
	if !ok {
		return domain.Instance{}, false, apperrors.ErrInstanceNotFoundf(id)
	}

	inst.LastHealthCheckAt = at
	prev := inst.Status
	switch {
	case healthy && prev == domain.InstanceUnhealthy:
		inst.Status = domain.InstanceActive
	case !healthy && prev == domain.InstanceActive:
		inst.Status = domain.InstanceUnhealthy
	}
	return *inst, inst.Status != prev, nil
}

// Transition moves an instance to status `to` if its current status is one
// of `from`. It fails without side effects otherwise.
func (r *Registry) Transition(id string, to domain.InstanceStatus, from ...domain.InstanceStatus) (domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[id]
	if !ok {
		return domain.Instance{}, apperrors.ErrInstanceNotFoundf(id)
	}
	for _, f := range from {
		if inst.Status == f {
			inst.Status = to
			return *inst, nil
		}
	}
	return *inst, apperrors.ErrInstanceNotActivef(id, string(inst.Status))
}

// ViewActive runs fn with a copy of the instance while holding the read
// lock, so no status transition can interleave with fn. fn must not call
// back into the registry.
func (r *Registry) ViewActive(id string, fn func(domain.Instance) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.byID[id]
	if !ok {
		return apperrors.ErrInstanceNotFoundf(id)
	}
	if inst.Status != domain.InstanceActive {
		return apperrors.ErrInstanceNotActivef(id, string(inst.Status))
	}
	return fn(*inst)
}
