// Package domain provides the domain model of the VNF control plane.
//
// Providers, stores and the API exchange these types, never Kubernetes
// objects or database rows (anti-corruption layer).
package domain

import "time"

// VNFType identifies a network function from the configured catalog.
type VNFType string

// Default catalog.
const (
	VNFFirewall          VNFType = "firewall"
	VNFAntivirus         VNFType = "antivirus"
	VNFSpamFilter        VNFType = "spamfilter"
	VNFContentFiltering  VNFType = "content_filtering"
	VNFEncryptionGateway VNFType = "encryption_gateway"
)

// DefaultVNFTypes lists the catalog used when none is configured.
var DefaultVNFTypes = []VNFType{
	VNFFirewall, VNFAntivirus, VNFSpamFilter, VNFContentFiltering, VNFEncryptionGateway,
}

// VNFTypes converts configuration strings into VNFTypes.
func VNFTypes(names []string) []VNFType {
	out := make([]VNFType, 0, len(names))
	for _, n := range names {
		out = append(out, VNFType(n))
	}
	return out
}

// InstanceStatus represents the lifecycle state of a VNF instance.
//
//	(none) → ACTIVE ⇄ UNHEALTHY → DRAINING → REMOVED → (deleted)
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "ACTIVE"
	InstanceUnhealthy InstanceStatus = "UNHEALTHY"
	InstanceDraining  InstanceStatus = "DRAINING"
	InstanceRemoved   InstanceStatus = "REMOVED"
)

// Instance is one running unit of a VNF type.
type Instance struct {
	ID      string         `json:"id"`
	VNFType VNFType        `json:"vnf_type"`
	Address string         `json:"address"`
	Status  InstanceStatus `json:"status"`
	// Managed is true when the lifecycle manager created the runtime unit and
	// must terminate it on removal. Externally registered instances are not.
	Managed           bool      `json:"managed"`
	CreatedAt         time.Time `json:"created_at"`
	LastHealthCheckAt time.Time `json:"last_health_check_at,omitempty"`
}

// IsActive reports whether the instance may receive new load.
func (i Instance) IsActive() bool {
	return i.Status == InstanceActive
}

// InstanceList is a snapshot of instances of one type.
type InstanceList struct {
	VNFType VNFType    `json:"vnf_type"`
	Items   []Instance `json:"items"`
	Active  int        `json:"active"`
}
