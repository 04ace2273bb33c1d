// Package scan implements the security-scanner tools: target syntax
// validation, heuristic findings, and an optional reputation lookup.
package scan

import (
	"context"
	"log/slog"
)

// Result is the combined scan outcome for one target.
type Result struct {
	Target     string    `json:"target"`
	Type       string    `json:"type"`
	Findings   []Finding `json:"findings"`
	Verdict    *Verdict  `json:"verdict,omitempty"`
	Reputation string    `json:"reputation,omitempty"`
	Service    string    `json:"service"`
}

// Scanner combines the heuristic rules with the reputation upstream. The
// reputation service is optional; without it a scan still returns the
// heuristic findings.
type Scanner struct {
	heuristics *Heuristics
	reputation ReputationService
	enabled    bool
}

func NewScanner(heuristics *Heuristics, reputation ReputationService, reputationEnabled bool) *Scanner {
	return &Scanner{
		heuristics: heuristics,
		reputation: reputation,
		enabled:    reputationEnabled && reputation != nil,
	}
}

// Scan evaluates an already-validated target. A failing reputation lookup
// degrades to heuristics-only rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context, targetType, target string) (*Result, error) {
	findings, err := s.heuristics.Evaluate(targetType, target)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Target:   target,
		Type:     targetType,
		Findings: findings,
		Service:  "heuristics",
	}

	if s.enabled {
		verdict, err := s.reputation.Lookup(ctx, targetType, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			slog.Warn("reputation lookup degraded to heuristics only", "target", target, "error", err)
		} else {
			result.Verdict = verdict
			result.Reputation = verdict.Reputation()
			result.Service = "heuristics+virustotal"
		}
	}

	return result, nil
}
