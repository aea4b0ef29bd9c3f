package domain

import "time"

// RequestType classifies an SFC request.
type RequestType string

const (
	RequestInboundUserProtection            RequestType = "inbound_user_protection"
	RequestOutboundDataProtectionCompliance RequestType = "outbound_data_protection_compliance"
	RequestAuthAndAntiSpoofEnforcement      RequestType = "auth_and_anti_spoof_enforcement"
	RequestAttachmentRiskReduction          RequestType = "attachment_risk_reduction"
	RequestBranchCloudSaaSAccess            RequestType = "branch_cloud_saas_access"
)

// Direction of the traffic a chain processes.
type Direction string

const (
	DirectionInbound       Direction = "inbound"
	DirectionOutbound      Direction = "outbound"
	DirectionBidirectional Direction = "bidirectional"
)

// Reverse returns the direction of the return path.
// Inbound traffic answers outbound; everything else answers inbound.
func (d Direction) Reverse() Direction {
	if d == DirectionInbound {
		return DirectionOutbound
	}
	return DirectionInbound
}

// RequestStatus represents the state of an SFC request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestAllocating RequestStatus = "ALLOCATING"
	RequestActive     RequestStatus = "ACTIVE"
	RequestFailed     RequestStatus = "FAILED"
	RequestCompleted  RequestStatus = "COMPLETED"
)

// SFCStatus represents the state of an allocated chain.
type SFCStatus string

const (
	SFCAllocating SFCStatus = "ALLOCATING"
	SFCActive     SFCStatus = "ACTIVE"
	SFCCompleted  SFCStatus = "COMPLETED"
	SFCFailed     SFCStatus = "FAILED"
)

// RequestMetadata is the traffic intent an SFC request is classified from.
type RequestMetadata struct {
	EmailType          string    `json:"email_type,omitempty"`
	Direction          Direction `json:"direction,omitempty"`
	HasAttachments     bool      `json:"has_attachments,omitempty"`
	ComplianceRequired bool      `json:"compliance_required,omitempty"`
	SaaSAccess         bool      `json:"saas_access,omitempty"`
	// Priority in [1,10]; zero selects the configured default.
	Priority int `json:"priority,omitempty"`
	// ServiceDurationSeconds bounds how long the chain stays allocated;
	// zero selects the configured default (which may be "no expiry").
	ServiceDurationSeconds int64             `json:"service_duration_seconds,omitempty"`
	Labels                 map[string]string `json:"labels,omitempty"`
}

// SFCRequest is a classified request for one chain.
type SFCRequest struct {
	ID              string          `json:"id"`
	RequestType     RequestType     `json:"request_type"`
	Direction       Direction       `json:"direction"`
	Chain           []VNFType       `json:"chain"`
	Priority        int             `json:"priority"`
	Metadata        RequestMetadata `json:"metadata"`
	LatencyBudgetMs int64           `json:"latency_budget_ms,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Status          RequestStatus   `json:"status"`
}

// Clone returns a deep copy.
func (r *SFCRequest) Clone() *SFCRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Chain = append([]VNFType(nil), r.Chain...)
	if r.Metadata.Labels != nil {
		out.Metadata.Labels = make(map[string]string, len(r.Metadata.Labels))
		for k, v := range r.Metadata.Labels {
			out.Metadata.Labels[k] = v
		}
	}
	return &out
}

// SFCInstance is the allocation backing one request.
// References into the registry and flow table are ids only.
type SFCInstance struct {
	ID            string             `json:"id"`
	RequestRef    string             `json:"request_ref"`
	RequestType   RequestType        `json:"request_type"`
	Direction     Direction          `json:"direction"`
	Chain         []VNFType          `json:"chain"`
	AllocatedVNFs map[VNFType]string `json:"allocated_vnfs"`
	FlowRuleIDs   []string           `json:"flow_rule_ids"`
	Status        SFCStatus          `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
	// ComplementaryOf links a return-path chain to its primary.
	ComplementaryOf string     `json:"complementary_of,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AllocationMs    float64    `json:"allocation_ms"`
}

// Clone returns a deep copy.
func (s *SFCInstance) Clone() *SFCInstance {
	if s == nil {
		return nil
	}
	out := *s
	out.Chain = append([]VNFType(nil), s.Chain...)
	out.FlowRuleIDs = append([]string(nil), s.FlowRuleIDs...)
	out.AllocatedVNFs = make(map[VNFType]string, len(s.AllocatedVNFs))
	for k, v := range s.AllocatedVNFs {
		out.AllocatedVNFs[k] = v
	}
	out.StartTime = cloneTime(s.StartTime)
	out.EndTime = cloneTime(s.EndTime)
	out.ExpiresAt = cloneTime(s.ExpiresAt)
	return &out
}

// IsTerminal reports whether the instance holds no live resources.
func (s *SFCInstance) IsTerminal() bool {
	return s.Status == SFCCompleted || s.Status == SFCFailed
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SFCRecord pairs a request with its allocation for persistence.
type SFCRecord struct {
	Request  *SFCRequest  `json:"request"`
	Instance *SFCInstance `json:"instance"`
}

// SFCStats summarizes allocation outcomes since start.
type SFCStats struct {
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	Active          int     `json:"active"`
	AcceptanceRatio float64 `json:"acceptance_ratio"`
	AvgAllocationMs float64 `json:"avg_allocation_ms"`
	OverBudget      int     `json:"over_latency_budget"`
}
