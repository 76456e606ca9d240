// Package katapult is a read-only client for the Katapult Pro job API.
package katapult

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// Client defines the job provider operations.
type Client interface {
	// ListJobs returns every job in provider order.
	ListJobs(ctx context.Context) ([]JobSummary, error)
	// GetJob returns the full raw graph for one job.
	GetJob(ctx context.Context, id string) (*Job, error)
	// ListUpdatedJobs returns jobs updated within [from, to].
	ListUpdatedJobs(ctx context.Context, from, to time.Time) ([]UpdatedJob, error)
	// ListUsers returns provider accounts.
	ListUsers(ctx context.Context) ([]User, error)
}

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://katapultpro.com/api/v2"

// DefaultMinInterval is the enforced gap between provider calls.
const DefaultMinInterval = 2 * time.Second

const rateLimitMessage = "RATE LIMIT EXCEEDED"

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithMinInterval sets the minimum gap between calls, retries included.
// Zero disables the gap.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// NewClient creates a provider client. Per-attempt timeouts come from the
// retry policy, so the HTTP client itself carries none.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("katapult", "get")
	}
	return c
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + q.Encode()

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "katapult: wait for rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "katapult: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(redact(err), "katapult: GET %s", path)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "katapult: read %s", path), resp.StatusCode)
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("katapult: GET %s status %d", path, resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("katapult: GET %s status %d: %s", path, resp.StatusCode, truncate(body, 200))
		}

		if msg := apiError(body); msg != "" {
			if strings.EqualFold(msg, rateLimitMessage) {
				return nil, resilience.NewTransientError(
					eris.Errorf("katapult: GET %s: %s", path, msg), http.StatusTooManyRequests)
			}
			return nil, eris.Errorf("katapult: GET %s: api error: %s", path, msg)
		}
		return body, nil
	})
}

// ListJobs decodes the job object with a streaming decoder so the provider's
// key order is kept.
func (c *httpClient) ListJobs(ctx context.Context) ([]JobSummary, error) {
	body, err := c.get(ctx, "/jobs", nil)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "katapult: decode job list")
	}

	var jobs []JobSummary
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "katapult: decode job list key")
		}
		id, _ := tok.(string)

		var entry struct {
			Name   Text `json:"name"`
			Status Text `json:"status"`
		}
		if err := dec.Decode(&entry); err != nil {
			return nil, eris.Wrapf(err, "katapult: decode job list entry %s", id)
		}
		jobs = append(jobs, JobSummary{ID: id, Name: string(entry.Name), Status: string(entry.Status)})
	}
	return jobs, nil
}

func (c *httpClient) GetJob(ctx context.Context, id string) (*Job, error) {
	body, err := c.get(ctx, "/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, eris.Wrapf(err, "katapult: decode job %s", id)
	}
	job.ID = id
	return &job, nil
}

type updatedEntry struct {
	ID          Text `json:"id"`
	Name        Text `json:"name"`
	LastUpdated Text `json:"last_updated"`
}

func (c *httpClient) ListUpdatedJobs(ctx context.Context, from, to time.Time) ([]UpdatedJob, error) {
	q := url.Values{}
	q.Set("start_date", from.Format(time.DateOnly))
	q.Set("end_date", to.Format(time.DateOnly))
	q.Set("status_changed", "true")

	body, err := c.get(ctx, "/jobs", q)
	if err != nil {
		return nil, err
	}

	var entries []updatedEntry
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var byID map[string]updatedEntry
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return nil, eris.Wrap(err, "katapult: decode updated jobs")
		}
		for id, e := range byID {
			if e.ID == "" {
				e.ID = Text(id)
			}
			entries = append(entries, e)
		}
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return nil, eris.Wrap(err, "katapult: decode updated jobs")
	}

	out := make([]UpdatedJob, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		ts, ok := ParseTime(string(e.LastUpdated))
		if ok && (ts.Before(from) || ts.After(to)) {
			continue
		}
		out = append(out, UpdatedJob{ID: string(e.ID), Name: string(e.Name), LastUpdated: ts})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.Before(out[j].LastUpdated)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *httpClient) ListUsers(ctx context.Context) ([]User, error) {
	body, err := c.get(ctx, "/users", nil)
	if err != nil {
		return nil, err
	}

	type rawUser struct {
		ID    Text `json:"id"`
		UID   Text `json:"uid"`
		Name  Text `json:"name"`
		Email Text `json:"email"`
	}
	var list []rawUser
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Users []rawUser `json:"users"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, eris.Wrap(err, "katapult: decode users")
		}
		list = wrapped.Users
	} else if err := json.Unmarshal(body, &list); err != nil {
		return nil, eris.Wrap(err, "katapult: decode users")
	}

	users := make([]User, 0, len(list))
	for _, u := range list {
		id := u.ID
		if id == "" {
			id = u.UID
		}
		users = append(users, User{ID: string(id), Name: string(u.Name), Email: string(u.Email)})
	}
	return users, nil
}

func apiError(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var probe struct {
		Error Text `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(string(probe.Error))
}

// redact strips the api key from transport errors, which embed the URL.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			q := u.Query()
			if q.Has("api_key") {
				q.Set("api_key", "REDACTED")
				u.RawQuery = q.Encode()
				ue.URL = u.String()
			}
		}
	}
	return err
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}

// ParseTime reads the provider's timestamp forms: unix millis, RFC 3339, and
// naive date-times or dates taken as UTC. The second return is false for
// blank or unrecognized input.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
