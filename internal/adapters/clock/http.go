package clock

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var timestampFields = []string{"unixtime", "timestamp", "epoch", "unix", "time"}

// HTTP asks a time service for the current Unix timestamp.
type HTTP struct {
	url  string
	http *http.Client
	log  logrus.FieldLogger
}

func NewHTTP(url string, timeout time.Duration, log logrus.FieldLogger) *HTTP {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTP{url: url, http: &http.Client{Timeout: timeout}, log: log.WithField("component", "clock")}
}

func (c *HTTP) Now(ctx context.Context) time.Time {
	ts, err := c.fetch(ctx)
	if err != nil {
		c.log.WithError(err).Debug("time service unavailable, using local clock")
		return Local{}.Now(ctx)
	}
	return ts
}

func (c *HTTP) fetch(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("time service returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return time.Time{}, err
	}
	return ParseTimestamp(body)
}

// ParseTimestamp accepts a bare Unix timestamp or a JSON object carrying one
// in a well-known field. Seconds may be fractional; millisecond values are
// recognised by magnitude.
func ParseTimestamp(body []byte) (time.Time, error) {
	text := strings.TrimSpace(string(body))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return fromUnix(v)
	}
	if !gjson.Valid(text) {
		return time.Time{}, fmt.Errorf("unrecognised timestamp payload")
	}
	for _, f := range timestampFields {
		r := gjson.Get(text, f)
		if r.Type == gjson.Number {
			return fromUnix(r.Float())
		}
		if r.Type == gjson.String {
			if v, err := strconv.ParseFloat(r.String(), 64); err == nil {
				return fromUnix(v)
			}
		}
	}
	return time.Time{}, fmt.Errorf("no timestamp field in payload")
}

func fromUnix(v float64) (time.Time, error) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, fmt.Errorf("invalid timestamp %v", v)
	}
	if v > 1e12 {
		v /= 1000
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
