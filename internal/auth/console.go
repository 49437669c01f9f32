package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"

	"runcoach/internal/types"
)

// ConsoleCodeProvider prints the authorization URL and reads the code typed
// or pasted by the athlete. Only the CLI installs it.
type ConsoleCodeProvider struct {
	In  io.Reader
	Out io.Writer
}

// NewConsoleCodeProvider reads from stdin and prompts on stderr.
func NewConsoleCodeProvider() *ConsoleCodeProvider {
	return &ConsoleCodeProvider{In: os.Stdin, Out: os.Stderr}
}

// Code implements CodeProvider. The input may be the bare code or the full
// redirect URL the browser landed on. Cancelling ctx abandons the prompt.
func (p *ConsoleCodeProvider) Code(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Authorize runcoach by visiting:\n\n  %s\n\n", authURL)
	fmt.Fprint(p.Out, "Paste the code (or the full redirect URL): ")

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := p.readLine()
		done <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		// A read on a file such as stdin cannot be interrupted and ends with
		// the process. Other closable inputs are closed to release the reader.
		if _, isFile := p.In.(*os.File); !isFile {
			if c, ok := p.In.(io.Closer); ok {
				_ = c.Close()
			}
		}
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", types.NewAppError(types.ErrCodeAuthCodeUnavailable, "failed to read authorization code", r.err)
		}
		return extractCode(r.line), nil
	}
}

// readLine hides the input on a terminal and falls back to plain line
// reading for pipes.
func (p *ConsoleCodeProvider) readLine() (string, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("reading code: %w", err)
		}
		return string(b), nil
	}

	s := bufio.NewScanner(p.In)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	return input
}
