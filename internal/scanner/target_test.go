package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/domain"
)

func TestValidateTargetAccepts(t *testing.T) {
	cases := map[string]string{
		"192.168.100.2":      "192.168.100.2",
		"10.0.0.1":           "10.0.0.1",
		" scanme.nmap.org ":  "scanme.nmap.org",
		"Example.COM":        "example.com",
		"localhost":          "localhost",
		"db-01.internal.lan": "db-01.internal.lan",
		"bücher.example":     "xn--bcher-kva.example",
	}
	for in, want := range cases {
		got, err := ValidateTarget(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestValidateTargetRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"256.1.1.1",
		"1.2.3",
		"-oX /tmp/x",
		"host;rm -rf /",
		"under_score.example",
		"10.0.0.0/24",
		"http://example.com",
		"-sn",
		"exa mple.com",
	} {
		_, err := ValidateTarget(in)
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, in)
	}
}
