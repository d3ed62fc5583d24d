package advisory

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"riskscan/internal/domain"
)

// Known locations of a 0-10 base score, most specific first: NVD 2.0,
// CVE JSON 5 (CNA and ADP containers), then flat documents.
var scorePaths = []string{
	"vulnerabilities.0.cve.metrics.cvssMetricV40.0.cvssData.baseScore",
	"vulnerabilities.0.cve.metrics.cvssMetricV31.0.cvssData.baseScore",
	"vulnerabilities.0.cve.metrics.cvssMetricV30.0.cvssData.baseScore",
	"vulnerabilities.0.cve.metrics.cvssMetricV2.0.cvssData.baseScore",
	"containers.cna.metrics.#.cvssV4_0.baseScore",
	"containers.cna.metrics.#.cvssV3_1.baseScore",
	"containers.cna.metrics.#.cvssV3_0.baseScore",
	"containers.adp.#.metrics.#.cvssV3_1.baseScore",
	"base_score",
	"baseScore",
	"cvss3",
	"cvss.score",
	"cvss",
}

var summaryPaths = []string{
	"vulnerabilities.0.cve.descriptions.#(lang==\"en\").value",
	"containers.cna.descriptions.#(lang==\"en\").value",
	"summary",
	"description",
}

var patchPaths = []string{
	"patch",
	"fix",
	"remediation",
	"solution",
}

var fixedInRegex = regexp.MustCompile(`(?i)\b(fixed in|upgrade to|patched in|update to|apply the patch|security update)\b.*?(\.(\s|$)|$)`)

// Decode reads an advisory document. Every field it cannot find, or finds
// with an unusable value, is left absent.
func Decode(ref string, body []byte) domain.Advisory {
	adv := domain.Advisory{Ref: ref}
	if !gjson.ValidBytes(body) {
		return adv
	}
	doc := gjson.ParseBytes(body)

	for _, p := range scorePaths {
		if v, ok := scoreAt(doc, p); ok {
			adv.BaseScore = domain.Some(v)
			break
		}
	}
	for _, p := range summaryPaths {
		if r := doc.Get(p); r.Exists() && strings.TrimSpace(r.String()) != "" {
			adv.Summary = domain.Some(strings.TrimSpace(r.String()))
			break
		}
	}
	if hint, ok := patchHint(doc, adv.Summary); ok {
		adv.PatchHint = domain.Some(hint)
	}
	return adv
}

// scoreAt returns the first numeric value in [0,10] at path. Paths with a
// '#' query yield arrays.
func scoreAt(doc gjson.Result, path string) (float64, bool) {
	r := doc.Get(path)
	if !r.Exists() {
		return 0, false
	}
	candidates := []gjson.Result{r}
	if r.IsArray() {
		candidates = flatten(r)
	}
	for _, c := range candidates {
		if c.Type != gjson.Number {
			continue
		}
		if v := c.Float(); v >= 0 && v <= 10 {
			return v, true
		}
	}
	return 0, false
}

func flatten(r gjson.Result) []gjson.Result {
	var out []gjson.Result
	for _, item := range r.Array() {
		if item.IsArray() {
			out = append(out, flatten(item)...)
			continue
		}
		out = append(out, item)
	}
	return out
}

// patchHint looks for explicit patch fields, then NVD references tagged
// "Patch", then a "fixed in ..." sentence in the summary.
func patchHint(doc gjson.Result, summary domain.Opt[string]) (string, bool) {
	for _, p := range patchPaths {
		if r := doc.Get(p); r.Exists() && r.Type == gjson.String && strings.TrimSpace(r.String()) != "" {
			return strings.TrimSpace(r.String()), true
		}
	}

	var patchURL string
	doc.Get("vulnerabilities.0.cve.references").ForEach(func(_, ref gjson.Result) bool {
		for _, tag := range ref.Get("tags").Array() {
			if strings.EqualFold(tag.String(), "Patch") {
				patchURL = ref.Get("url").String()
				return false
			}
		}
		return true
	})
	if patchURL != "" {
		return "vendor patch available at " + patchURL, true
	}

	if summary.Present {
		if m := fixedInRegex.FindString(summary.Value); m != "" {
			return strings.TrimSpace(m), true
		}
	}
	return "", false
}
