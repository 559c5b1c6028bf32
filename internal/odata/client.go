package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/florianilch/odatactl/internal/observability/middleware"
)

// acceptJSON requests minimal metadata; some services fail on odata.metadata=full.
const acceptJSON = "application/json;odata.metadata=minimal"

// Client issues OData v4 requests. Authentication is the job of the http.Client's transport.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit caps outgoing requests per second. A non-positive rate disables limiting.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient creates a Client on top of httpClient.
func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{httpClient: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metadata fetches and parses serviceRoot/$metadata.
func (c *Client) Metadata(ctx context.Context, serviceRoot string) (*Metadata, error) {
	uri, err := NewURIBuilder(serviceRoot).AppendEntitySetSegment("$metadata").Build()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, uri, nil, "application/xml", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return ParseMetadata(resp.Body)
}

// ReadEntities returns an iterator over the entity set at uri, following server-driven paging.
func (c *Client) ReadEntities(ctx context.Context, uri string) *EntityIterator {
	return &EntityIterator{client: c, ctx: ctx, next: uri}
}

// ReadEntity fetches a single entity.
func (c *Client) ReadEntity(ctx context.Context, uri string) (Entity, error) {
	var e Entity
	if err := c.doJSON(ctx, http.MethodGet, uri, nil, nil, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEntity posts e to the entity set at uri and returns the created entity.
func (c *Client) CreateEntity(ctx context.Context, uri string, e Entity) (Entity, error) {
	var created Entity
	if err := c.doJSON(ctx, http.MethodPost, uri, nil, e.Properties(), &created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEntity applies e as a PATCH to the entity at uri and returns the response status code.
// The entity's ETag guards the update; without one any version is overwritten.
func (c *Client) UpdateEntity(ctx context.Context, uri string, e Entity) (int, error) {
	header := http.Header{"If-Match": {ifMatch(e.ETag())}}

	body, err := json.Marshal(e.Properties())
	if err != nil {
		return 0, fmt.Errorf("encoding entity: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, uri, header, acceptJSON, body)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// DeleteEntity deletes the entity at uri and returns the response status code.
func (c *Client) DeleteEntity(ctx context.Context, uri string) (int, error) {
	header := http.Header{"If-Match": {"*"}}

	resp, err := c.do(ctx, http.MethodDelete, uri, header, acceptJSON, nil)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func ifMatch(etag string) string {
	if etag == "" {
		return "*"
	}
	return etag
}

// doJSON sends an optional JSON body and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, uri string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	resp, err := c.do(ctx, method, uri, header, acceptJSON, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", uri, err)
	}
	return nil
}

// do performs one request and turns non-2xx responses into *Error.
// The body is passed as bytes so the transport can replay it after a token refresh.
func (c *Client) do(ctx context.Context, method, uri string, header http.Header, accept string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	requestID, ok := middleware.RequestIDFromContext(ctx)
	if !ok {
		requestID = middleware.NewRequestID()
		ctx = middleware.ContextWithRequestID(ctx, requestID)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, uri, err)
	}

	slog.DebugContext(ctx, "odata request",
		"method", method,
		"url", uri,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, newError(resp)
	}
	return resp, nil
}

// EntityIterator walks an entity set page by page.
//
//	it := client.ReadEntities(ctx, uri)
//	for it.Next() {
//		e := it.Entity()
//	}
//	if err := it.Err(); err != nil { ... }
type EntityIterator struct {
	client *Client
	ctx    context.Context
	next   string
	page   []Entity
	pos    int
	err    error
}

// Next advances to the next entity, fetching the next page when needed.
func (it *EntityIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.page) {
		if it.next == "" {
			return false
		}
		var page entitySetPage
		if err := it.client.doJSON(it.ctx, http.MethodGet, it.next, nil, nil, &page); err != nil {
			it.err = err
			return false
		}
		it.page, it.pos, it.next = page.Value, 0, page.NextLink
	}
	it.pos++
	return true
}

// Entity returns the current entity. Valid only after Next returned true.
func (it *EntityIterator) Entity() Entity {
	return it.page[it.pos-1]
}

// Err returns the error that stopped iteration, if any.
func (it *EntityIterator) Err() error {
	return it.err
}

// All drains the iterator.
func (it *EntityIterator) All() ([]Entity, error) {
	var all []Entity
	for it.Next() {
		all = append(all, it.Entity())
	}
	return all, it.Err()
}
