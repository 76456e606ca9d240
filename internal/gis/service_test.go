package gis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

type call struct {
	path     string
	where    string
	features int
	token    string
}

type fakeServer struct {
	mu      sync.Mutex
	calls   []call
	handler func(w http.ResponseWriter, c call) bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	c := call{path: r.URL.Path, where: r.PostForm.Get("where"), token: r.PostForm.Get("token")}
	if fs := r.PostForm.Get("features"); fs != "" {
		var arr []json.RawMessage
		_ = json.Unmarshal([]byte(fs), &arr)
		c.features = len(arr)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.handler != nil && f.handler(w, c) {
		return
	}
	switch {
	case strings.HasSuffix(c.path, "/deleteFeatures"):
		fmt.Fprint(w, `{"deleteResults":[{"objectId":1,"success":true},{"objectId":2,"success":true}]}`)
	case strings.HasSuffix(c.path, "/addFeatures"):
		results := make([]string, c.features)
		for i := range results {
			results[i] = fmt.Sprintf(`{"objectId":%d,"success":true}`, i+10)
		}
		fmt.Fprintf(w, `{"addResults":[%s]}`, strings.Join(results, ","))
	}
}

func (f *fakeServer) callsFor(prefix string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if strings.HasPrefix(c.path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func newTestService(t *testing.T, fs *fakeServer, opts ...Option) *Service {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetry(fastRetry())}, opts...)
	return NewService(srv.URL+"/FeatureServer/", "tok", opts...)
}

func TestService_Sync(t *testing.T) {
	fs := &fakeServer{}
	svc := newTestService(t, fs, WithBatchSize(1))

	res, err := svc.Sync(context.Background(), FromResult(testJob(), testResult()))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"poles": 2, "connections": 2, "anchors": 1}, res.Added)
	assert.Equal(t, 2, res.Deleted["poles"])

	poles := fs.callsFor("/FeatureServer/0/")
	require.Len(t, poles, 3)
	assert.Equal(t, "/FeatureServer/0/deleteFeatures", poles[0].path, "delete runs before add")
	assert.Equal(t, "jobname = 'O''Fallon 3'", poles[0].where)
	assert.Equal(t, "tok", poles[0].token)
	assert.Equal(t, 1, poles[1].features)

	conns := fs.callsFor("/FeatureServer/1/")
	require.Len(t, conns, 3)
	assert.Equal(t, "JobName = 'O''Fallon 3'", conns[0].where)
}

func TestService_ReplaceEmptyOnlyDeletes(t *testing.T) {
	fs := &fakeServer{}
	svc := newTestService(t, fs)

	deleted, added, err := svc.Replace(context.Background(), DefaultLayers().Anchors, "Job A", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Zero(t, added)
	require.Len(t, fs.calls, 1)
	assert.Equal(t, "/FeatureServer/2/deleteFeatures", fs.calls[0].path)
}

func TestService_RetriesTransient(t *testing.T) {
	var failures int
	fs := &fakeServer{handler: func(w http.ResponseWriter, c call) bool {
		if strings.HasSuffix(c.path, "/deleteFeatures") && failures < 2 {
			failures++
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		}
		return false
	}}
	svc := newTestService(t, fs)

	_, _, err := svc.Replace(context.Background(), DefaultLayers().Poles, "Job A", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, failures)
	assert.Len(t, fs.calls, 3)
}

func TestService_ErrorInBody(t *testing.T) {
	fs := &fakeServer{handler: func(w http.ResponseWriter, c call) bool {
		fmt.Fprint(w, `{"error":{"code":498,"message":"Invalid token.","details":[]}}`)
		return true
	}}
	svc := newTestService(t, fs)

	_, _, err := svc.Replace(context.Background(), DefaultLayers().Poles, "Job A", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "498 Invalid token.")
	assert.Len(t, fs.calls, 1, "permanent errors are not retried")
}

func TestService_RejectedFeatures(t *testing.T) {
	fs := &fakeServer{handler: func(w http.ResponseWriter, c call) bool {
		if strings.HasSuffix(c.path, "/addFeatures") {
			fmt.Fprint(w, `{"addResults":[{"success":true},{"success":false,"error":{"code":1000,"description":"bad"}}]}`)
			return true
		}
		return false
	}}
	svc := newTestService(t, fs)

	jf := FromResult(testJob(), testResult())
	_, added, err := svc.Replace(context.Background(), DefaultLayers().Poles, jf.JobName, jf.Poles)
	require.Error(t, err)
	assert.Equal(t, 1, added)
	assert.Contains(t, err.Error(), "1 of 2 features rejected")
}

func TestService_BreakerOpens(t *testing.T) {
	fs := &fakeServer{handler: func(w http.ResponseWriter, c call) bool {
		w.WriteHeader(http.StatusBadRequest)
		return true
	}}
	br := resilience.NewBreaker("gis-test", resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	svc := newTestService(t, fs, WithBreaker(br))

	_, _, err := svc.Replace(context.Background(), DefaultLayers().Poles, "Job A", nil)
	require.Error(t, err)
	_, _, err = svc.Replace(context.Background(), DefaultLayers().Poles, "Job A", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrBreakerOpen))
	assert.Len(t, fs.calls, 1)
}

func TestJobWhere(t *testing.T) {
	assert.Equal(t, "jobname = 'A'", JobWhere("jobname", "A"))
	assert.Equal(t, "jobname = 'it''s'", JobWhere("jobname", "it's"))
}
