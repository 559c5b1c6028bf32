package tokensource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Transport is an http.RoundTripper that authorizes every request through a Provider.
//
// The first request runs the interactive flow. A 401 response triggers one
// shared refresh and a single replay of the request when its body can be
// rewound. No request is sent without a bearer token.
type Transport struct {
	Provider *Provider

	// Base performs the actual requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Reauthorize falls back to the interactive flow when a refresh fails.
	// Without it the RefreshError is returned to the caller.
	Reauthorize bool
}

// Compile-time check to ensure Transport implements http.RoundTripper
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := t.acquire(ctx); err != nil {
		closeBody(req)
		return nil, err
	}

	resp, token, err := t.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	slog.DebugContext(ctx, "upstream rejected access token", "url", req.URL.Redacted())

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// Cannot replay; the next request refreshes instead.
		t.Provider.Invalidate(token)
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if err := t.Provider.refreshStale(ctx, token); err != nil {
		var refreshErr *RefreshError
		if !t.Reauthorize || !errors.As(err, &refreshErr) || ctx.Err() != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "refresh failed, falling back to interactive authorization", "error", err)
		if err := t.Provider.EnsureInitialized(ctx); err != nil {
			return nil, err
		}
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		retry.Body = body
	}

	resp, _, err = t.send(retry)
	return resp, err
}

// acquire makes sure the Provider holds a token, preferring a silent refresh over user interaction.
func (t *Transport) acquire(ctx context.Context) error {
	switch t.Provider.State() {
	case Authorized:
		return nil
	case Uninitialized, AwaitingUserCode:
		return t.Provider.EnsureInitialized(ctx)
	}

	err := t.Provider.Refresh(ctx)
	if err == nil {
		return nil
	}
	if !t.Reauthorize || ctx.Err() != nil {
		return err
	}
	slog.InfoContext(ctx, "token expired and refresh failed, starting interactive authorization", "error", err)
	return t.Provider.EnsureInitialized(ctx)
}

// send decorates a clone of req and performs it. It returns the token that was attached.
func (t *Transport) send(req *http.Request) (*http.Response, string, error) {
	out := req.Clone(req.Context())
	if err := t.Provider.DecorateRequest(out); err != nil {
		closeBody(req)
		return nil, "", err
	}
	// Read back what was attached; the Provider may have moved on since.
	token := strings.TrimPrefix(out.Header.Get("Authorization"), "Bearer ")

	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(out.Header))

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, "", err
	}
	return resp, token, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// closeBody honors the RoundTripper contract of closing the body even on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
