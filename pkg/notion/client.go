// Package notion wraps the Notion API for publishing rows into a database.
package notion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// Client defines the Notion API operations used by this application.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s).
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry sets the retry policy applied to every call.
func WithRetry(cfg resilience.RetryConfig) ClientOption {
	return func(c *notionClient) { c.retry = cfg }
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a new Notion client with the given integration token.
// Calls are throttled to 3 req/s and retried on 429 and 5xx responses.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("notion", "api")
	}
	return c
}

// call runs fn under the rate limiter and retry policy.
func call[T any](ctx context.Context, c *notionClient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (T, error) {
		var zero T
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, eris.Wrap(err, "notion: rate limit")
			}
		}
		out, err := fn(ctx)
		if err != nil {
			return zero, eris.Wrap(classify(err), "notion: "+op)
		}
		return out, nil
	})
}

// classify marks retryable API failures as transient.
func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Status) {
		return resilience.NewTransientError(err, apiErr.Status)
	}
	return err
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return call(ctx, c, fmt.Sprintf("query database %s", dbID), func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		return c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "create page", func(ctx context.Context) (*notionapi.Page, error) {
		return c.inner.Page.Create(ctx, req)
	})
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return call(ctx, c, fmt.Sprintf("update page %s", pageID), func(ctx context.Context) (*notionapi.Page, error) {
		return c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}
