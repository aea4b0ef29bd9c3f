// Package provider binds the control plane to the outside world: the runtime
// that creates and terminates VNF units, and the probes that read their
// health and load.
//
// Anti-Corruption Layer: callers only see domain types and Unit. Kubernetes
// and KubeVirt objects never leave this package.
package provider

import (
	"context"
	"time"

	"github.com/sri0013/vnf-project/internal/domain"
)

// Unit is a runtime workload created for a VNF instance.
type Unit struct {
	ID        string         `json:"id"`
	VNFType   domain.VNFType `json:"vnf_type"`
	Address   string         `json:"address"`
	CreatedAt time.Time      `json:"created_at"`
}

// Runtime creates and terminates VNF units.
//
// Create must not return before the unit has an address the Prober can reach;
// it does not wait for the unit to pass health checks.
type Runtime interface {
	Name() string
	Create(ctx context.Context, vnfType domain.VNFType) (*Unit, error)
	Terminate(ctx context.Context, unitID string) error
}

// Prober reads an instance's health and load by address.
type Prober interface {
	CheckHealth(ctx context.Context, address string) error
	FetchMetrics(ctx context.Context, address string) (*domain.MetricSample, error)
}

// Backend is a runtime that can also probe the units it created.
type Backend interface {
	Runtime
	Prober
}
