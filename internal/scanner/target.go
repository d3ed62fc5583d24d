package scanner

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"riskscan/internal/domain"
)

var (
	ipv4Regex     = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])$`)
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*\.?$`)
)

// ValidateTarget accepts an IPv4 literal or a hostname and returns the form
// handed to the scan tool. Internationalised names are converted to ASCII.
func ValidateTarget(target string) (string, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return "", domain.InvalidTargetError(target)
	}
	if ipv4Regex.MatchString(t) {
		return t, nil
	}
	ascii, err := idna.Lookup.ToASCII(t)
	if err != nil {
		return "", domain.InvalidTargetError(target)
	}
	if len(ascii) > 253 || !hostnameRegex.MatchString(ascii) {
		return "", domain.InvalidTargetError(target)
	}
	// All-numeric dotted names are malformed IPv4, not hostnames.
	if strings.Trim(ascii, "0123456789.") == "" {
		return "", domain.InvalidTargetError(target)
	}
	return strings.ToLower(ascii), nil
}
