package enrichment

import (
	"fmt"

	"riskscan/internal/domain"
)

// TreatmentInput is everything the treatment rules look at.
type TreatmentInput struct {
	Score          float64
	Category       domain.RiskCategory
	Classification domain.Classification
	Product        string
	PatchHint      domain.Opt[string]
}

// ChooseAction applies the treatment rules in order: category default,
// database escalation above 70, managed-product transfer above 50.
func ChooseAction(in TreatmentInput) domain.TreatmentAction {
	var action domain.TreatmentAction
	switch in.Category {
	case domain.RiskVeryLow, domain.RiskLow:
		action = domain.TreatAccept
	case domain.RiskMedium, domain.RiskHigh:
		action = domain.TreatMitigate
	default:
		action = domain.TreatAvoid
	}
	if in.Classification == domain.ClassDatabase && in.Score > 70 {
		if in.PatchHint.Present {
			action = domain.TreatMitigate
		} else {
			action = domain.TreatAvoid
		}
	}
	if in.Score > 50 && ManagedProduct(in.Product) {
		action = domain.TreatTransfer
	}
	return action
}

// RecommendTreatment picks the action and renders its justification and
// ordered remediation steps.
func RecommendTreatment(in TreatmentInput) domain.Treatment {
	action := ChooseAction(in)
	t := domain.Treatment{
		Action:        action,
		Justification: justification(action, in),
		Steps:         steps(action, in),
	}
	return t
}

func justification(action domain.TreatmentAction, in TreatmentInput) string {
	base := fmt.Sprintf("%s asset with risk score %.1f (%s)", in.Classification, in.Score, in.Category)
	switch action {
	case domain.TreatAccept:
		return base + ": residual risk is within tolerance; record and monitor."
	case domain.TreatMitigate:
		if in.PatchHint.Present {
			return base + ": a vendor fix is available, remediate on the normal patch cycle."
		}
		return base + ": exploitable exposure should be reduced with compensating controls."
	case domain.TreatTransfer:
		return base + ": the affected component is operated by a third party; hand the risk to the provider under contract."
	default:
		if in.Classification == domain.ClassDatabase {
			return base + ": data store exposure with no known fix; remove the service from reachable networks."
		}
		return base + ": risk exceeds tolerance; discontinue or isolate the exposed service."
	}
}

func steps(action domain.TreatmentAction, in TreatmentInput) []string {
	var out []string
	switch action {
	case domain.TreatAccept:
		out = []string{
			"Record the finding in the risk register with the accepted rationale.",
			"Re-scan on the next scheduled cycle to confirm the risk has not grown.",
		}
	case domain.TreatMitigate:
		if in.PatchHint.Present {
			out = append(out, "Apply the vendor fix: "+in.PatchHint.Value)
		}
		out = append(out,
			"Restrict network access to the affected service to required sources only.",
			"Harden the service configuration and disable unused features.",
			"Re-scan to verify the finding is resolved.",
		)
	case domain.TreatTransfer:
		out = []string{
			"Open a ticket with the provider referencing the finding and advisory.",
			"Confirm contractual responsibility and remediation timeline.",
			"Track the provider's fix and re-scan once it is reported deployed.",
		}
	default:
		out = []string{
			"Take the affected service offline or block it at the perimeter immediately.",
			"Identify owners and dependent systems before any re-enablement.",
			"Replace or upgrade the component; re-scan before restoring access.",
		}
	}
	return out
}
