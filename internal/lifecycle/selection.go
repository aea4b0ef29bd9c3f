package lifecycle

import "github.com/sri0013/vnf-project/internal/domain"

// Load score weights.
const (
	weightCPU     = 0.4
	weightMemory  = 0.3
	weightLatency = 0.3
)

// LoadScore is 0.4·cpu + 0.3·mem + 0.3·latency_norm, where latency_norm is
// latency / latencyUpper clamped to 1 and scaled to 0..100.
func LoadScore(s domain.MetricSample, latencyUpper float64) float64 {
	latencyNorm := 0.0
	if latencyUpper > 0 {
		latencyNorm = s.LatencyMs / latencyUpper
		if latencyNorm > 1 {
			latencyNorm = 1
		}
	}
	return weightCPU*s.CPUPct + weightMemory*s.MemPct + weightLatency*latencyNorm*100
}

// SelectForRemoval returns the candidate with the lowest load score.
// Candidates without a sample score 0. Ties go to the oldest instance.
func SelectForRemoval(candidates []domain.Instance, samples map[string]domain.MetricSample, latencyUpper float64) (domain.Instance, bool) {
	var (
		best      domain.Instance
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		score := 0.0
		if s, ok := samples[c.ID]; ok {
			score = LoadScore(s, latencyUpper)
		}
		if !found || score < bestScore || (score == bestScore && c.CreatedAt.Before(best.CreatedAt)) {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}
