package enrichment

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

// Pipeline enriches parsed scan results. Advisory lookups are optional; a
// nil Advisories falls back to heuristic severities.
type Pipeline struct {
	advisories ports.Advisories
	log        logrus.FieldLogger
}

func New(advisories ports.Advisories, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{advisories: advisories, log: log.WithField("component", "enrichment")}
}

func (p *Pipeline) Enrich(ctx context.Context, res domain.ScanResult) domain.EnrichedScanResult {
	out := domain.EnrichedScanResult{
		Target:    res.Target,
		Status:    res.Status,
		Address:   res.Address,
		Hostname:  res.Hostname,
		OS:        res.OS,
		Ports:     res.Ports,
		Findings:  make([]domain.EnrichedFinding, 0, len(res.Findings)),
		ScannedAt: res.ScannedAt,
	}

	density := assetDensity(res.Findings)
	seen := map[string]domain.Advisory{}
	for _, f := range res.Findings {
		adv, ok := seen[f.AdvisoryRef]
		if !ok && f.AdvisoryRef != "" {
			adv = p.lookup(ctx, f.AdvisoryRef)
			seen[f.AdvisoryRef] = adv
		}
		out.Findings = append(out.Findings, EnrichFinding(f, adv, density[assetKey(f.Context)]))
	}
	out.Summary = Summarize(out.Findings)
	return out
}

// lookup absorbs every advisory failure; the finding is scored on defaults.
func (p *Pipeline) lookup(ctx context.Context, ref string) domain.Advisory {
	if p.advisories == nil {
		return domain.Advisory{Ref: ref}
	}
	adv, err := p.advisories.Lookup(ctx, ref)
	if err != nil {
		entry := p.log.WithField("ref", ref).WithError(err)
		if errors.Is(err, domain.ErrAdvisoryLookup) {
			entry.Warn("advisory lookup failed, using defaults")
		} else {
			entry.Error("advisory lookup error, using defaults")
		}
		return domain.Advisory{Ref: ref}
	}
	adv.Ref = ref
	return adv
}

// EnrichFinding is the pure per-finding step: classification, scoring,
// categorisation and treatment.
func EnrichFinding(f domain.Finding, adv domain.Advisory, sameAsset int) domain.EnrichedFinding {
	class := Classify(f.Context.Product, f.Context.Service, f.Context.Port)
	exposed := f.Context.Level == domain.LevelPort && PublicFacing(f.Context.Port)
	if sameAsset < 1 {
		sameAsset = 1
	}
	score := ComputeRiskScore(BaseSeverity(adv, f.Severity), exposed, sameAsset)
	category := MapScoreToCategory(score)

	ef := domain.EnrichedFinding{
		Finding:        f,
		Classification: class,
		Risk:           domain.Risk{Score: score, Category: category},
		Treatment: RecommendTreatment(TreatmentInput{
			Score:          score,
			Category:       category,
			Classification: class,
			Product:        f.Context.Product,
			PatchHint:      adv.PatchHint,
		}),
	}
	if adv.Found() {
		a := adv
		ef.Advisory = &a
	}
	return ef
}

// Summarize aggregates a scan's enriched findings.
func Summarize(findings []domain.EnrichedFinding) domain.Summary {
	s := domain.Summary{Count: len(findings), Category: domain.RiskVeryLow}
	if len(findings) == 0 {
		return s
	}
	var total float64
	for _, f := range findings {
		total += f.Risk.Score
		if f.Risk.Score > s.MaxScore {
			s.MaxScore = f.Risk.Score
		}
	}
	s.MeanScore = round1(total / float64(len(findings)))
	s.Category = MapScoreToCategory(s.MaxScore)
	return s
}

type asset struct {
	level domain.ContextLevel
	port  int
	proto string
}

func assetKey(c domain.FindingContext) asset {
	return asset{level: c.Level, port: c.Port, proto: c.Protocol}
}

// assetDensity counts findings per asset: one asset per port, plus one for
// host-level findings.
func assetDensity(findings []domain.Finding) map[asset]int {
	m := make(map[asset]int, len(findings))
	for _, f := range findings {
		m[assetKey(f.Context)]++
	}
	return m
}
