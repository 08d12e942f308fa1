package coding

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// ErrServiceUnavailable is the analyzer's simulated hard failure.
var ErrServiceUnavailable = errors.New("Service Unavailable")

// AnalysisProvider turns clinical text into coding suggestions. A returned
// error is a hard failure; an empty result is a valid "nothing to code".
type AnalysisProvider interface {
	Analyze(ctx context.Context, text string) ([]Suggestion, error)
}

// SimulatedAnalyzer reproduces the reasoning service's behavior on a fixed
// keyword table. MinLatency/MaxLatency bound the simulated thinking time;
// zero values mean no delay, which the tests rely on.
type SimulatedAnalyzer struct {
	MinLatency time.Duration
	MaxLatency time.Duration
}

// NewSimulatedAnalyzer returns the production construction with the
// original 500ms..1500ms latency band.
func NewSimulatedAnalyzer() *SimulatedAnalyzer {
	return &SimulatedAnalyzer{
		MinLatency: 500 * time.Millisecond,
		MaxLatency: 1500 * time.Millisecond,
	}
}

func (a *SimulatedAnalyzer) Analyze(ctx context.Context, text string) ([]Suggestion, error) {
	if d := a.latency(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "error"):
		return nil, ErrServiceUnavailable
	case strings.Contains(lower, "grippe"), strings.Contains(lower, "fièvre"):
		return []Suggestion{
			{Code: "J10.1", Label: "Grippe avec autres manifestations respiratoires", Confidence: 0.95},
			{Code: "R50.9", Label: "Fièvre, sans précision", Confidence: 0.85},
		}, nil
	case strings.Contains(lower, "fatigue"), strings.Contains(lower, "mal"):
		return []Suggestion{
			{Code: "R53", Label: "Malaise et fatigue", Confidence: 0.25},
		}, nil
	default:
		return []Suggestion{}, nil
	}
}

func (a *SimulatedAnalyzer) latency() time.Duration {
	if a.MaxLatency <= a.MinLatency {
		return a.MinLatency
	}
	return a.MinLatency + time.Duration(rand.Int63n(int64(a.MaxLatency-a.MinLatency)))
}
