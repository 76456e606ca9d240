package gis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// DefaultBatchSize is how many features go in one addFeatures call.
const DefaultBatchSize = 250

// Layer is one feature layer and the attribute that holds the job name.
type Layer struct {
	Name     string
	ID       int
	JobField string
}

// Layers names the three feature layers.
type Layers struct {
	Poles       Layer
	Connections Layer
	Anchors     Layer
}

// DefaultLayers returns the standard layer ids.
func DefaultLayers() Layers {
	return Layers{
		Poles:       Layer{Name: "poles", ID: 0, JobField: "jobname"},
		Connections: Layer{Name: "connections", ID: 1, JobField: "JobName"},
		Anchors:     Layer{Name: "anchors", ID: 2, JobField: "jobname"},
	}
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.http = hc }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithBreaker sets the circuit breaker guarding every call.
func WithBreaker(b *resilience.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithBatchSize sets the addFeatures batch size.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithLayers overrides the layer ids.
func WithLayers(l Layers) Option {
	return func(s *Service) { s.layers = l }
}

// Service writes features to an ArcGIS FeatureServer.
type Service struct {
	baseURL string
	token   string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	batch   int
	layers  Layers
}

// NewService creates a client for the FeatureServer at baseURL.
func NewService(baseURL, token string, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewBreaker("gis", resilience.DefaultBreakerConfig()),
		batch:   DefaultBatchSize,
		layers:  DefaultLayers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger("gis", "post")
	}
	return s
}

// SyncResult counts features written per layer.
type SyncResult struct {
	Deleted map[string]int
	Added   map[string]int
}

// Sync replaces one job's features on every layer. Layers run concurrently;
// the first failure cancels the rest.
func (s *Service) Sync(ctx context.Context, jf JobFeatures) (SyncResult, error) {
	res := SyncResult{Deleted: make(map[string]int), Added: make(map[string]int)}
	type layerResult struct {
		name           string
		deleted, added int
	}
	results := make([]layerResult, 3)

	g, gctx := errgroup.WithContext(ctx)
	for i, lf := range []struct {
		layer    Layer
		features []Feature
	}{
		{s.layers.Poles, jf.Poles},
		{s.layers.Connections, jf.Connections},
		{s.layers.Anchors, jf.Anchors},
	} {
		g.Go(func() error {
			deleted, added, err := s.Replace(gctx, lf.layer, jf.JobName, lf.features)
			results[i] = layerResult{lf.layer.Name, deleted, added}
			return err
		})
	}
	err := g.Wait()
	for _, r := range results {
		if r.name != "" {
			res.Deleted[r.name] = r.deleted
			res.Added[r.name] = r.added
		}
	}
	if err != nil {
		return res, eris.Wrapf(err, "gis: sync %s", jf.JobName)
	}
	zap.L().Info("gis: synced job",
		zap.String("job_name", jf.JobName),
		zap.Int("features", jf.Count()),
	)
	return res, nil
}

// Replace deletes every feature of jobName from layer, then adds features in
// batches. An empty feature list still clears the job.
func (s *Service) Replace(ctx context.Context, layer Layer, jobName string, features []Feature) (deleted, added int, err error) {
	deleted, err = s.deleteJob(ctx, layer, jobName)
	if err != nil {
		return 0, 0, err
	}
	for start := 0; start < len(features); start += s.batch {
		end := min(start+s.batch, len(features))
		n, err := s.add(ctx, layer, features[start:end])
		added += n
		if err != nil {
			return deleted, added, err
		}
	}
	return deleted, added, nil
}

// JobWhere builds the where clause selecting one job on a layer.
func JobWhere(field, jobName string) string {
	return fmt.Sprintf("%s = '%s'", field, strings.ReplaceAll(jobName, "'", "''"))
}

type editResult struct {
	ObjectID int  `json:"objectId"`
	Success  bool `json:"success"`
	Error    *struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

type editResponse struct {
	AddResults    []editResult `json:"addResults"`
	DeleteResults []editResult `json:"deleteResults"`
	Error         *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (s *Service) deleteJob(ctx context.Context, layer Layer, jobName string) (int, error) {
	form := url.Values{}
	form.Set("where", JobWhere(layer.JobField, jobName))
	resp, err := s.post(ctx, layer, "deleteFeatures", form)
	if err != nil {
		return 0, err
	}
	return succeeded(resp.DeleteResults), nil
}

func (s *Service) add(ctx context.Context, layer Layer, features []Feature) (int, error) {
	body, err := EncodeEsri(features)
	if err != nil {
		return 0, err
	}
	form := url.Values{}
	form.Set("features", string(body))
	form.Set("rollbackOnFailure", "true")
	resp, err := s.post(ctx, layer, "addFeatures", form)
	if err != nil {
		return 0, err
	}
	n := succeeded(resp.AddResults)
	if n != len(features) {
		return n, eris.Errorf("gis: %s addFeatures: %d of %d features rejected", layer.Name, len(features)-n, len(features))
	}
	return n, nil
}

func succeeded(rs []editResult) int {
	var n int
	for _, r := range rs {
		if r.Success {
			n++
		}
	}
	return n
}

func (s *Service) post(ctx context.Context, layer Layer, op string, form url.Values) (*editResponse, error) {
	form.Set("f", "json")
	if s.token != "" {
		form.Set("token", s.token)
	}
	endpoint := fmt.Sprintf("%s/%d/%s", s.baseURL, layer.ID, op)
	encoded := form.Encode()

	var out *editResponse
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*editResponse, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
			if err != nil {
				return nil, eris.Wrap(err, "gis: create request")
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := s.http.Do(req)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "gis: %s %s", layer.Name, op), 0)
			}
			defer resp.Body.Close() //nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "gis: read %s", op), resp.StatusCode)
			}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(
					eris.Errorf("gis: %s %s status %d", layer.Name, op, resp.StatusCode), resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, eris.Errorf("gis: %s %s status %d", layer.Name, op, resp.StatusCode)
			}

			var er editResponse
			if err := json.Unmarshal(body, &er); err != nil {
				return nil, eris.Wrapf(err, "gis: decode %s", op)
			}
			if er.Error != nil {
				// ArcGIS reports HTTP-style codes inside a 200 body.
				e := eris.Errorf("gis: %s %s: %d %s", layer.Name, op, er.Error.Code, er.Error.Message)
				if resilience.IsTransientHTTPStatus(er.Error.Code) {
					return nil, resilience.NewTransientError(e, er.Error.Code)
				}
				return nil, e
			}
			return &er, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
