package flowtable

import (
	"sync"

	"github.com/sri0013/vnf-project/internal/domain"
)

// LoadBalancer hands out ACTIVE instances of a type round-robin.
//
// The cursor is kept per type and simply wraps over the current healthy set;
// it may drift while membership changes, but with a stable set every
// instance is returned within len(healthy) consecutive calls.
type LoadBalancer struct {
	source InstanceSource

	mu      sync.Mutex
	cursors map[domain.VNFType]int
}

// NewLoadBalancer creates a balancer reading from source.
func NewLoadBalancer(source InstanceSource) *LoadBalancer {
	return &LoadBalancer{
		source:  source,
		cursors: make(map[domain.VNFType]int),
	}
}

// Next returns the next healthy instance, or false when there is no capacity.
func (lb *LoadBalancer) Next(vnfType domain.VNFType) (domain.Instance, bool) {
	healthy := lb.source.ListActive(vnfType)
	if len(healthy) == 0 {
		return domain.Instance{}, false
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	cursor := lb.cursors[vnfType] % len(healthy)
	lb.cursors[vnfType] = (cursor + 1) % len(healthy)
	return healthy[cursor], true
}
