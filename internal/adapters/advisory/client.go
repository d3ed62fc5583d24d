package advisory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"riskscan/internal/domain"
)

const maxBody = 4 << 20

// Client queries an HTTP advisory service. URL holds an {id} placeholder,
// e.g. https://services.nvd.nist.gov/rest/json/cves/2.0?cveId={id}.
type Client struct {
	url  string
	http *http.Client
}

func New(urlTemplate string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: urlTemplate, http: &http.Client{Timeout: timeout}}
}

// Lookup fetches and decodes one advisory. A 404 is "no data"; transport
// errors and other non-2xx responses wrap domain.ErrAdvisoryLookup.
func (c *Client) Lookup(ctx context.Context, ref string) (domain.Advisory, error) {
	adv := domain.Advisory{Ref: ref}
	u := strings.ReplaceAll(c.url, "{id}", url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return adv, fmt.Errorf("%w: build request: %v", domain.ErrAdvisoryLookup, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return adv, fmt.Errorf("%w: %v", domain.ErrAdvisoryLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return adv, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return adv, fmt.Errorf("%w: %s returned status %d", domain.ErrAdvisoryLookup, ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return adv, fmt.Errorf("%w: read body: %v", domain.ErrAdvisoryLookup, err)
	}
	return Decode(ref, body), nil
}
