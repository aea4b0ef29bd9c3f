// Package policy asks an external policy engine what to do next.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sri0013/vnf-project/internal/domain"
)

// Action is a policy recommendation.
type Action string

const (
	ActionAllocate  Action = "ALLOCATE"
	ActionUninstall Action = "UNINSTALL"
	ActionWait      Action = "WAIT"
)

// Recommendation is the policy's advice for one VNF type.
type Recommendation struct {
	Action  Action         `json:"action"`
	VNFType domain.VNFType `json:"vnf_type,omitempty"`
}

// Applies reports whether r asks for action on vnfType.
func (r Recommendation) Applies(vnfType domain.VNFType, action Action) bool {
	return r.Action == action && r.VNFType == vnfType
}

// Snapshot is the state the policy decides on.
type Snapshot struct {
	Aggregates      map[domain.VNFType]domain.AggregatedMetric `json:"aggregates"`
	Instances       map[domain.VNFType]int                     `json:"instances"`
	PendingRequests int                                        `json:"pending_requests"`
	Timestamp       time.Time                                  `json:"timestamp"`
}

// Provider recommends an action from a snapshot.
type Provider interface {
	Recommend(ctx context.Context, snap Snapshot) (Recommendation, error)
}

// Wait is the provider used when no policy engine is configured.
type Wait struct{}

func (Wait) Recommend(context.Context, Snapshot) (Recommendation, error) {
	return Recommendation{Action: ActionWait}, nil
}

// HTTPProvider posts the snapshot as JSON and reads a Recommendation back.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Recommend(ctx context.Context, snap Snapshot) (Recommendation, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return Recommendation{}, fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Recommendation{}, fmt.Errorf("build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Recommendation{}, fmt.Errorf("policy request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Recommendation{}, fmt.Errorf("policy request: status %d", resp.StatusCode)
	}

	var rec Recommendation
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&rec); err != nil {
		return Recommendation{}, fmt.Errorf("decode recommendation: %w", err)
	}
	rec.Action = Action(strings.ToUpper(string(rec.Action)))
	switch rec.Action {
	case ActionAllocate, ActionUninstall, ActionWait:
	default:
		return Recommendation{}, fmt.Errorf("unknown policy action %q", rec.Action)
	}
	return rec, nil
}
