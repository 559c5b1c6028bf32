package tokensource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/term"
)

// Presenter shows the grant URL to the user.
type Presenter interface {
	Present(ctx context.Context, grantURL string) error
}

// CodeReader obtains the authorization code returned by the identity provider's redirect.
// Implementations must return when ctx is done.
type CodeReader interface {
	ReadCode(ctx context.Context) (string, error)
}

// ConsolePresenter prints the grant URL and optionally opens it in the system browser.
type ConsolePresenter struct {
	Out         io.Writer
	OpenBrowser bool
}

// Present writes login instructions to Out. A browser that fails to launch is
// logged and ignored, since the printed URL still works.
func (p *ConsolePresenter) Present(ctx context.Context, grantURL string) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}

	if p.OpenBrowser {
		if err := openBrowser(grantURL); err != nil {
			slog.DebugContext(ctx, "could not open browser", "error", err)
		}
	}

	_, err := fmt.Fprintf(out,
		"=== OAuth2 Login ===\n\n1. Visit this URL in your browser:\n   %s\n\n2. Authorize the application\n3. Paste the authorization code from the redirect\n",
		grantURL)
	return err
}

// openBrowser launches the platform URL opener without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %q", runtime.GOOS)
	}
	return cmd.Start()
}

// ConsoleReader reads a single line containing the authorization code.
// On a terminal the input is not echoed.
type ConsoleReader struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

// ReadCode blocks until a line is read or ctx is done.
// Goroutine+select pattern required because neither term.ReadPassword nor
// bufio support context cancellation; the reading goroutine is abandoned on cancel.
func (r *ConsoleReader) ReadCode(ctx context.Context) (string, error) {
	in := r.In
	if in == nil {
		in = os.Stdin
	}
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	prompt := r.Prompt
	if prompt == "" {
		prompt = "\nEnter authorization code: "
	}

	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		value, err := readLine(in)
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		return res.value, nil
	}
}

func readLine(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		// A final line without newline still counts.
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("input closed before authorization code was entered: %w", err)
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
