package domain

import "time"

// DefaultFlowPriority is used for the base rule the lifecycle manager
// installs for every new instance.
const DefaultFlowPriority = 100

// FlowStatus represents the state of a flow rule.
type FlowStatus string

const (
	FlowActive  FlowStatus = "ACTIVE"
	FlowRemoved FlowStatus = "REMOVED"
)

// FlowRule steers traffic of a VNF type to one instance.
type FlowRule struct {
	ID         string     `json:"id"`
	VNFType    VNFType    `json:"vnf_type"`
	InstanceID string     `json:"instance_id"`
	Priority   int        `json:"priority"`
	Status     FlowStatus `json:"status"`
	// SFCID is set for rules installed for one hop of a service chain.
	SFCID     string    `json:"sfc_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
