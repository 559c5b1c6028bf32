package callback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer binds a random loopback port up front so the test knows the address before ReadCode runs.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	redirect := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	s, err := New(redirect, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	s.listen = func(string, string) (net.Listener, error) { return ln, nil }

	return s, redirect
}

func readCodeAsync(ctx context.Context, s *Server) <-chan result {
	ch := make(chan result, 1)
	go func() {
		code, err := s.ReadCode(ctx)
		ch <- result{code: code, err: err}
	}()
	return ch
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		wantAddr string
		wantErr  bool
	}{
		{"localhost with port", "http://localhost:8085/oauth/callback", "localhost:8085", false},
		{"loopback ip default port", "http://127.0.0.1/cb", "127.0.0.1:80", false},
		{"ipv6 loopback", "http://[::1]:9000/cb", "[::1]:9000", false},
		{"https rejected", "https://localhost:8085/cb", "", true},
		{"remote host rejected", "http://app.example.com/cb", "", true},
		{"non-loopback ip rejected", "http://10.0.0.1:8085/cb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.redirect, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, s.Addr())
		})
	}
}

func TestServer_ReadCode(t *testing.T) {
	s, redirect := newTestServer(t)
	resCh := readCodeAsync(context.Background(), s)

	resp, err := http.Get(redirect + "?code=abc123&session_state=xyz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Authorization received")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, "abc123", res.code)
	case <-time.After(5 * time.Second):
		t.Fatal("ReadCode did not return")
	}
}

func TestServer_ReadCode_MissingCodeKeepsWaiting(t *testing.T) {
	s, redirect := newTestServer(t)
	resCh := readCodeAsync(context.Background(), s)

	resp, err := http.Get(redirect)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(redirect + "?code=later")
	require.NoError(t, err)
	_ = resp.Body.Close()

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, "later", res.code)
}

func TestServer_ReadCode_ProviderError(t *testing.T) {
	s, redirect := newTestServer(t)
	resCh := readCodeAsync(context.Background(), s)

	resp, err := http.Get(redirect + "?error=access_denied&error_description=user+cancelled")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	res := <-resCh
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "access_denied")
	assert.Contains(t, res.err.Error(), "user cancelled")
}

func TestServer_ReadCode_Cancelled(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ReadCode(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}
