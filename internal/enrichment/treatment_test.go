package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riskscan/internal/domain"
)

func input(score float64, class domain.Classification, product string, patch domain.Opt[string]) TreatmentInput {
	return TreatmentInput{
		Score:          score,
		Category:       MapScoreToCategory(score),
		Classification: class,
		Product:        product,
		PatchHint:      patch,
	}
}

func TestChooseActionDefaults(t *testing.T) {
	none := domain.None[string]()
	assert.Equal(t, domain.TreatAccept, ChooseAction(input(5, domain.ClassApplication, "", none)))
	assert.Equal(t, domain.TreatAccept, ChooseAction(input(30, domain.ClassApplication, "", none)))
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(45, domain.ClassApplication, "", none)))
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(85, domain.ClassInfrastructure, "", none)))
	assert.Equal(t, domain.TreatAvoid, ChooseAction(input(85.1, domain.ClassInfrastructure, "", none)))
}

func TestChooseActionDatabaseEscalation(t *testing.T) {
	none := domain.None[string]()
	patch := domain.Some("Upgrade to 9.6.24")
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(70, domain.ClassDatabase, "", none)))
	assert.Equal(t, domain.TreatAvoid, ChooseAction(input(70.1, domain.ClassDatabase, "", none)))
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(70.1, domain.ClassDatabase, "", patch)))
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(95, domain.ClassDatabase, "", patch)))
}

func TestChooseActionManagedTransfer(t *testing.T) {
	none := domain.None[string]()
	assert.Equal(t, domain.TreatTransfer, ChooseAction(input(50.1, domain.ClassApplication, "AWS managed load balancer", none)))
	assert.Equal(t, domain.TreatMitigate, ChooseAction(input(50, domain.ClassApplication, "AWS managed load balancer", none)))
	assert.Equal(t, domain.TreatTransfer, ChooseAction(input(92, domain.ClassDatabase, "Azure managed SQL", none)))
}

func TestRecommendTreatmentSteps(t *testing.T) {
	tr := RecommendTreatment(input(55, domain.ClassInfrastructure, "", domain.Some("Upgrade to Apache 2.4.51")))
	assert.Equal(t, domain.TreatMitigate, tr.Action)
	assert.Contains(t, tr.Justification, "55.0")
	assert.Contains(t, tr.Justification, "vendor fix")
	if assert.NotEmpty(t, tr.Steps) {
		assert.Equal(t, "Apply the vendor fix: Upgrade to Apache 2.4.51", tr.Steps[0])
	}

	for _, action := range []domain.TreatmentAction{domain.TreatAccept, domain.TreatTransfer, domain.TreatAvoid} {
		var in TreatmentInput
		switch action {
		case domain.TreatAccept:
			in = input(12, domain.ClassApplication, "", domain.None[string]())
		case domain.TreatTransfer:
			in = input(60, domain.ClassApplication, "hosted SaaS portal", domain.None[string]())
		default:
			in = input(90, domain.ClassDatabase, "", domain.None[string]())
		}
		tr := RecommendTreatment(in)
		assert.Equal(t, action, tr.Action)
		assert.NotEmpty(t, tr.Justification)
		assert.GreaterOrEqual(t, len(tr.Steps), 2)
	}
}
