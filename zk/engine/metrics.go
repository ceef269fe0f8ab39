package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds all Prometheus metrics for the proof engine
type EngineMetrics struct {
	ProofsGenerated     *prometheus.CounterVec
	ProofGenerationTime *prometheus.HistogramVec
	ProofTimeouts       *prometheus.CounterVec

	ProofsVerified   *prometheus.CounterVec
	VerificationTime *prometheus.HistogramVec
	MalformedProofs  prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// NewEngineMetrics creates and registers engine metrics (singleton pattern)
func NewEngineMetrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = &EngineMetrics{
			ProofsGenerated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "proofs_generated_total",
					Help:      "Total proofs generated",
				},
				[]string{"circuit", "status"},
			),
			ProofGenerationTime: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "proof_generation_seconds",
					Help:      "Proof generation time in seconds",
					Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
				},
				[]string{"circuit"},
			),
			ProofTimeouts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "proof_timeouts_total",
					Help:      "Proof generation attempts abandoned on deadline",
				},
				[]string{"circuit"},
			),
			ProofsVerified: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "proofs_verified_total",
					Help:      "Total proof verifications",
				},
				[]string{"circuit", "result"},
			),
			VerificationTime: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "proof_verification_seconds",
					Help:      "Proof verification time in seconds",
					Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
				},
				[]string{"circuit"},
			),
			MalformedProofs: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "haunti",
					Subsystem: "engine",
					Name:      "malformed_proofs_total",
					Help:      "Proof submissions rejected as structurally undecodable",
				},
			),
		}
	})
	return engineMetrics
}

// GetEngineMetrics returns the singleton engine metrics instance
func GetEngineMetrics() *EngineMetrics {
	if engineMetrics == nil {
		return NewEngineMetrics()
	}
	return engineMetrics
}
