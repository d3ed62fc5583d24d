package parser

import (
	"regexp"
	"strings"

	"riskscan/internal/domain"
)

var (
	cveRegex       = regexp.MustCompile(`(?i)\bCVE-(\d{4})-(\d{4,7})\b`)
	scriptCVERegex = regexp.MustCompile(`(?i)cve[-_]?(\d{4})[-_](\d{4,7})`)

	highRegex   = regexp.MustCompile(`(?i)\b(critical|high|exploitable|remote code execution|rce|backdoor|state:\s*vulnerable)\b`)
	mediumRegex = regexp.MustCompile(`(?i)\b(medium|moderate|likely vulnerable|weak|deprecated|insecure|denial of service)\b`)
	lowRegex    = regexp.MustCompile(`(?i)\b(low|informational|info)\b`)

	// Output that carries no actionable signal.
	noiseRegex = regexp.MustCompile(`(?i)(connection refused|connection reset|reset by peer|timed? ?out\b|timeout|not vulnerable|no vulnerabilit(y|ies) found|couldn'?t find|could not find|no (results|matches|issues) found|did not (find|respond)|nothing found|unable to (connect|determine)|^\s*(false|error:?.*)\s*$)`)

	markerLine = regexp.MustCompile(`(?i)^(vulnerable:?|not vulnerable:?|state:.*|ids:.*|risk factor:.*|references?:?|disclosure date:.*|check results:?|extra information:?)$`)
)

// Normalize shapes one script result into a Finding.
func Normalize(id, output string, ctx domain.FindingContext) domain.Finding {
	output = strings.TrimSpace(output)
	title := titleFrom(output)
	if title == "" {
		title = Prettify(id)
	}
	return domain.Finding{
		ID:          id,
		Title:       title,
		Output:      output,
		Severity:    SeverityOf(output),
		AdvisoryRef: AdvisoryRef(id, title, output),
		Context:     ctx,
	}
}

// Actionable reports whether a finding survives the noise filter.
func Actionable(f domain.Finding) bool {
	if strings.TrimSpace(f.Output) == "" {
		return false
	}
	return !noiseRegex.MatchString(f.Output)
}

// SeverityOf derives a severity label from keywords in the output.
func SeverityOf(output string) domain.Severity {
	switch {
	case highRegex.MatchString(output):
		return domain.SeverityHigh
	case mediumRegex.MatchString(output):
		return domain.SeverityMedium
	case lowRegex.MatchString(output):
		return domain.SeverityLow
	}
	return domain.SeverityUnknown
}

// AdvisoryRef returns the first CVE id found in id, title or output, in that
// order. nmap script ids such as http-vuln-cve2017-5638 are recognised too.
func AdvisoryRef(id, title, output string) string {
	for _, s := range []string{id, title, output} {
		if m := cveRegex.FindStringSubmatch(s); m != nil {
			return "CVE-" + m[1] + "-" + m[2]
		}
	}
	if m := scriptCVERegex.FindStringSubmatch(id); m != nil {
		return "CVE-" + m[1] + "-" + m[2]
	}
	return ""
}

// titleFrom picks the first descriptive line of script output.
func titleFrom(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "|_ ")
		if line == "" || markerLine.MatchString(line) {
			continue
		}
		if len(line) > 120 {
			line = domain.Truncate(line, 117)
		}
		return line
	}
	return ""
}

// Prettify turns a script id like "ssl-dh-params" into "Ssl Dh Params".
func Prettify(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return "Unnamed finding"
	}
	return strings.Join(words, " ")
}
