// Package callback receives the authorization code on a loopback redirect URI,
// as an alternative to pasting it into the console.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/odatactl/internal/observability/middleware"
)

const successPage = `<html>
	<body>
		<h1>Authorization received</h1>
		<p>You can close this window and return to the terminal.</p>
	</body>
</html>
`

// Server listens on the host and path of a loopback redirect URI for the
// identity provider's redirect. It implements tokensource.CodeReader.
type Server struct {
	addr   string
	path   string
	logger *slog.Logger

	listen func(network, address string) (net.Listener, error)
}

// New creates a Server for redirectURI, which must be an http URL on a loopback host.
func New(redirectURI string, logger *slog.Logger) (*Server, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect uri %q: callback listener requires http scheme", redirectURI)
	}

	host := u.Hostname()
	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("redirect uri %q: callback listener requires a loopback host", redirectURI)
		}
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:   net.JoinHostPort(host, port),
		path:   path,
		logger: logger,
		listen: net.Listen,
	}, nil
}

// Addr returns the address the Server listens on while reading a code.
func (s *Server) Addr() string {
	return s.addr
}

type result struct {
	code string
	err  error
}

// ReadCode serves the redirect path until one redirect arrives or ctx is done,
// then shuts the listener down.
func (s *Server) ReadCode(ctx context.Context) (string, error) {
	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("listening for redirect on %s: %w", s.addr, err)
	}

	resultCh := make(chan result, 1)

	mux := http.NewServeMux()
	mux.Handle("GET "+s.path, s.redirectHandler(resultCh))

	redact, restore := middleware.RedactQuery("code", "state")
	srv := &http.Server{
		Handler: applyMiddlewares(mux,
			middleware.RequestIDGeneration,
			middleware.TraceContextExtraction,
			redact,
			middleware.Logging(s.logger),
			middleware.RequestIDPropagation,
			recovery,
			restore,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.InfoContext(ctx, "waiting for authorization redirect", "addr", s.addr, "path", s.path)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}
		return nil
	})

	var code string
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(shutdownCtx, "callback server shutdown failed", "error", err)
			}
		}()

		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case res := <-resultCh:
			code = res.code
			return res.err
		}
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return code, nil
}

// redirectHandler delivers the first redirect's outcome to resultCh.
// Later redirects are answered but ignored.
func (s *Server) redirectHandler(resultCh chan<- result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var res result
		if errCode := query.Get("error"); errCode != "" {
			res.err = fmt.Errorf("authorization denied: %s: %s", errCode, query.Get("error_description"))
		} else if res.code = query.Get("code"); res.code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		select {
		case resultCh <- res:
		default:
			http.Error(w, "authorization already received", http.StatusConflict)
			return
		}

		if res.err != nil {
			http.Error(w, "Authorization failed. Return to the terminal for details.", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(successPage)); err != nil {
			slog.ErrorContext(r.Context(), "failed to write response", "error", err)
		}
	}
}
