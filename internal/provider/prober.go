package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sri0013/vnf-project/internal/domain"
)

// Probe endpoints every VNF unit serves.
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics/json"
)

// maxProbeBody bounds how much of a probe response is read.
const maxProbeBody = 64 << 10

// HTTPProber probes VNF units over plain HTTP.
type HTTPProber struct {
	client *http.Client
	scheme string
}

// NewHTTPProber creates an HTTPProber. timeout caps a single probe even when
// the caller's context has no deadline.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		scheme: "http",
	}
}

// CheckHealth succeeds only on HTTP 200 from the unit's health endpoint.
func (p *HTTPProber) CheckHealth(ctx context.Context, address string) error {
	resp, err := p.get(ctx, address, HealthPath)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe %s: status %d", address, resp.StatusCode)
	}
	return nil
}

// probeMetrics accepts both the current field names and the older
// cpu_usage/memory_usage/processing_latency names some VNF images still emit.
type probeMetrics struct {
	CPUPct            *float64 `json:"cpu_pct"`
	MemPct            *float64 `json:"mem_pct"`
	LatencyMs         *float64 `json:"latency_ms"`
	PacketsProcessed  uint64   `json:"packets_processed"`
	CPUUsage          *float64 `json:"cpu_usage"`
	MemoryUsage       *float64 `json:"memory_usage"`
	ProcessingLatency *float64 `json:"processing_latency"`
}

// FetchMetrics reads one load sample from the unit.
func (p *HTTPProber) FetchMetrics(ctx context.Context, address string) (*domain.MetricSample, error) {
	resp, err := p.get(ctx, address, MetricsPath)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics probe %s: status %d", address, resp.StatusCode)
	}

	var m probeMetrics
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBody)).Decode(&m); err != nil {
		return nil, fmt.Errorf("metrics probe %s: decode: %w", address, err)
	}

	cpu, okCPU := firstOf(m.CPUPct, m.CPUUsage)
	mem, okMem := firstOf(m.MemPct, m.MemoryUsage)
	lat, okLat := firstOf(m.LatencyMs, m.ProcessingLatency)
	if !okCPU || !okMem || !okLat {
		return nil, fmt.Errorf("metrics probe %s: incomplete sample", address)
	}

	return &domain.MetricSample{
		CPUPct:           cpu,
		MemPct:           mem,
		LatencyMs:        lat,
		PacketsProcessed: m.PacketsProcessed,
		ObservedAt:       time.Now(),
	}, nil
}

func (p *HTTPProber) get(ctx context.Context, address, path string) (*http.Response, error) {
	url := address + path
	if !strings.Contains(address, "://") {
		url = p.scheme + "://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	return resp, nil
}

func firstOf(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxProbeBody))
	_ = body.Close()
}
