package tokensource

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultPromptTimeout bounds how long the interactive flow waits for the user's code.
const DefaultPromptTimeout = 5 * time.Minute

// defaultRefreshTimeout bounds a refresh exchange, matching the default endpoint client timeout.
const defaultRefreshTimeout = 30 * time.Second

const (
	flightAuthorize = "authorize"
	flightRefresh   = "refresh"
)

// Provider owns the token lifecycle for one set of credentials: interactive
// authorization on first use, silent refresh afterwards, and request decoration.
// All methods are safe for concurrent use.
type Provider struct {
	authorizer    *Authorizer
	presenter     Presenter
	reader        CodeReader
	promptTimeout time.Duration

	// refreshTimeout bounds a refresh flight, which outlives the callers waiting on it.
	refreshTimeout time.Duration

	mu    sync.Mutex
	state tokenState

	// authWaiters counts callers waiting on the authorize flight. The flow is
	// cancelled through authCancel once all of them have given up.
	authWaiters int
	authCancel  context.CancelFunc

	flights singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithPresenter replaces the console presenter.
func WithPresenter(p Presenter) Option {
	return func(pr *Provider) {
		pr.presenter = p
	}
}

// WithCodeReader replaces the console code reader.
func WithCodeReader(r CodeReader) Option {
	return func(pr *Provider) {
		pr.reader = r
	}
}

// WithPromptTimeout bounds the wait for the authorization code. Zero or negative disables the bound;
// the caller's context still applies.
func WithPromptTimeout(d time.Duration) Option {
	return func(pr *Provider) {
		pr.promptTimeout = d
	}
}

// NewProvider creates a Provider in the Uninitialized state.
func NewProvider(authorizer *Authorizer, opts ...Option) *Provider {
	p := &Provider{
		authorizer:     authorizer,
		presenter:      &ConsolePresenter{},
		reader:         &ConsoleReader{},
		promptTimeout:  DefaultPromptTimeout,
		refreshTimeout: defaultRefreshTimeout,
		state:          tokenState{state: Uninitialized},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.state
}

// Token returns the current access token and whether it is usable.
func (p *Provider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.accessToken, p.state.state == Authorized
}

// EnsureInitialized returns immediately when a token is held. Otherwise it runs
// the interactive authorization flow. Concurrent callers share a single flow;
// each caller may stop waiting when its own ctx is done. The flow itself is
// only cancelled once every waiting caller has given up.
func (p *Provider) EnsureInitialized(ctx context.Context) error {
	if p.State() == Authorized {
		return nil
	}

	p.mu.Lock()
	p.authWaiters++
	p.mu.Unlock()

	ch := p.flights.DoChan(flightAuthorize, func() (any, error) {
		flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()

		p.mu.Lock()
		if p.authWaiters == 0 {
			p.mu.Unlock()
			return nil, &AuthFlowError{Op: "wait", Err: context.Canceled}
		}
		// A flow that finished between the check above and joining the flight has already done the work.
		if p.state.state == Authorized {
			p.mu.Unlock()
			return nil, nil
		}
		p.authCancel = cancel
		p.mu.Unlock()

		defer func() {
			p.mu.Lock()
			p.authCancel = nil
			p.mu.Unlock()
		}()

		return nil, p.authorize(flowCtx)
	})

	select {
	case <-ctx.Done():
		p.leaveAuthorize()
		return &AuthFlowError{Op: "wait", Err: ctx.Err()}
	case res := <-ch:
		p.mu.Lock()
		p.authWaiters--
		p.mu.Unlock()
		return res.Err
	}
}

// leaveAuthorize unregisters a waiter and cancels the flow when it was the last one.
func (p *Provider) leaveAuthorize() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.authWaiters--
	if p.authWaiters == 0 && p.authCancel != nil {
		p.authCancel()
	}
}

// authorize runs the interactive flow. Only ever called inside the authorize flight.
func (p *Provider) authorize(ctx context.Context) error {
	p.mu.Lock()
	prev := p.state
	p.state = prev.awaitingCode()
	p.mu.Unlock()

	fail := func(op string, err error) error {
		p.mu.Lock()
		p.state = p.state.restore(prev)
		p.mu.Unlock()
		slog.WarnContext(ctx, "authorization flow failed", "step", op, "error", err)
		return &AuthFlowError{Op: op, Err: err}
	}

	slog.InfoContext(ctx, "starting interactive authorization")

	if err := p.presenter.Present(ctx, p.authorizer.GrantURL()); err != nil {
		return fail("present", err)
	}

	code, err := p.readCode(ctx)
	if err != nil {
		return fail("read code", err)
	}
	if code == "" {
		return fail("read code", ErrEmptyCode)
	}

	token, err := p.authorizer.Exchange(ctx, code)
	if err != nil {
		return fail("exchange", err)
	}

	p.mu.Lock()
	next, err := p.state.authorized(token)
	if err == nil {
		p.state = next
	}
	p.mu.Unlock()
	if err != nil {
		return fail("exchange", err)
	}

	slog.InfoContext(ctx, "authorization complete", "expiry", token.Expiry)
	return nil
}

func (p *Provider) readCode(ctx context.Context) (string, error) {
	if p.promptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.promptTimeout)
		defer cancel()
	}
	return p.reader.ReadCode(ctx)
}

// DecorateRequest replaces any Authorization headers on req with the current bearer token.
// It returns ErrNotAuthorized and leaves req untouched when no valid token is held.
func (p *Provider) DecorateRequest(req *http.Request) error {
	token, ok := p.Token()
	if !ok {
		return ErrNotAuthorized
	}

	req.Header.Del("Authorization")
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Refresh exchanges the held refresh token for a new token pair.
//
// Without a refresh token it fails with a RefreshError wrapping ErrNoRefreshToken
// and leaves the state unchanged. When the endpoint rejects the exchange or
// cannot be reached, the state moves to Expired and the caller should fall back
// to EnsureInitialized. A refresh that times out keeps the grant for a later attempt.
//
// The exchange is shared by concurrent callers and is not cancelled by any one
// of them; ctx only bounds how long this caller waits.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.refresh(ctx, "")
}

// refreshStale refreshes only if staleToken is still the current access token.
// Callers that observed a 401 with a token somebody else already replaced skip the exchange.
func (p *Provider) refreshStale(ctx context.Context, staleToken string) error {
	return p.refresh(ctx, staleToken)
}

func (p *Provider) refresh(ctx context.Context, staleToken string) error {
	ch := p.flights.DoChan(flightRefresh, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.refreshTimeout)
		defer cancel()

		p.mu.Lock()
		current := p.state
		if staleToken != "" {
			if current.state == Authorized && current.accessToken != staleToken {
				p.mu.Unlock()
				return nil, nil
			}
			p.state = current.stale(staleToken)
		}
		refreshToken := current.refreshToken
		p.mu.Unlock()

		if refreshToken == "" {
			return nil, &RefreshError{Err: ErrNoRefreshToken}
		}

		token, err := p.authorizer.Refresh(ctx, refreshToken)
		if err == nil {
			var next tokenState
			p.mu.Lock()
			// An interactive flow may have replaced the grant meanwhile; its tokens win.
			if p.state.refreshToken == refreshToken {
				if next, err = p.state.authorized(token); err == nil {
					p.state = next
				}
			}
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			// Only an answer from the endpoint ends the grant; a timeout leaves it for the next attempt.
			if p.state.refreshToken == refreshToken && !isContextError(err) {
				p.state = p.state.expired()
			}
			p.mu.Unlock()
			slog.WarnContext(ctx, "token refresh failed", "error", err)
			return nil, &RefreshError{Err: err}
		}

		slog.DebugContext(ctx, "token refreshed", "expiry", token.Expiry)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return &RefreshError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return nil
	}
}

// Invalidate marks token as rejected by the upstream. It has no effect if the
// token was already replaced.
func (p *Provider) Invalidate(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = p.state.stale(token)
}

// isContextError reports a refresh that was cut short rather than answered or refused by the endpoint.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
