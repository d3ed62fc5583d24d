package enrichment

import (
	"math"

	"riskscan/internal/domain"
)

const (
	cvssWeight     = 60.0
	exposureWeight = 30.0
	densityWeight  = 10.0
	densityCap     = 5
)

// DefaultBaseSeverity is the conservative 0-10 base used when no advisory
// score is available.
func DefaultBaseSeverity(s domain.Severity) float64 {
	switch s {
	case domain.SeverityHigh:
		return 8.5
	case domain.SeverityMedium:
		return 5.5
	case domain.SeverityLow:
		return 2.5
	}
	return 3.0
}

// BaseSeverity prefers the advisory's base score over the heuristic label.
func BaseSeverity(adv domain.Advisory, label domain.Severity) float64 {
	if adv.BaseScore.Present {
		return clamp(adv.BaseScore.Value, 0, 10)
	}
	return DefaultBaseSeverity(label)
}

// ComputeRiskScore combines base severity (up to 60), exposure (flat 30) and
// same-asset finding density (up to 10) into a score in [0,100] rounded to
// one decimal.
func ComputeRiskScore(base float64, exposed bool, count int) float64 {
	score := clamp(base, 0, 10) / 10 * cvssWeight
	if exposed {
		score += exposureWeight
	}
	if count > densityCap {
		count = densityCap
	}
	if count > 0 {
		score += float64(count) / densityCap * densityWeight
	}
	return round1(clamp(score, 0, 100))
}

// MapScoreToCategory maps a score to its band. Boundary values belong to the
// lower band.
func MapScoreToCategory(score float64) domain.RiskCategory {
	switch {
	case score <= 10:
		return domain.RiskVeryLow
	case score <= 30:
		return domain.RiskLow
	case score <= 60:
		return domain.RiskMedium
	case score <= 85:
		return domain.RiskHigh
	}
	return domain.RiskVeryHigh
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
