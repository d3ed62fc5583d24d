package advisory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/domain"
)

func TestLookupNVD(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "nvd_cve_2021_41773.json"))
	require.NoError(t, err)

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("cveId")
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer srv.Close()

	c := New(srv.URL+"/rest/json/cves/2.0?cveId={id}", time.Second)
	adv, err := c.Lookup(context.Background(), "CVE-2021-41773")
	require.NoError(t, err)
	assert.Equal(t, "CVE-2021-41773", gotQuery)
	assert.Equal(t, 7.5, adv.BaseScore.Value)
}

func TestLookupNotFoundIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	adv, err := New(srv.URL+"/{id}", time.Second).Lookup(context.Background(), "CVE-1999-0001")
	require.NoError(t, err)
	assert.False(t, adv.Found())
}

func TestLookupServerErrorIsSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adv, err := New(srv.URL+"/{id}", time.Second).Lookup(context.Background(), "CVE-2023-12345")
	assert.ErrorIs(t, err, domain.ErrAdvisoryLookup)
	assert.False(t, adv.Found())
}

func TestLookupUnreachableIsSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url+"/{id}", 200*time.Millisecond).Lookup(context.Background(), "CVE-2023-12345")
	assert.ErrorIs(t, err, domain.ErrAdvisoryLookup)
}
