package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrToolNotFound is returned when the command binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Command describes one external process invocation. Env entries are added
// on top of the current process environment.
type Command struct {
	Name    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Output returns stderr and stdout trimmed and joined, for error messages.
func (r Result) Output() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(string(r.Stderr)); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(string(r.Stdout)); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return res, fmt.Errorf("%w: %s: %w", ErrToolNotFound, c.Name, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%s timed out after %s: %w", c.Name, c.Timeout, ctx.Err())
		}
		return res, fmt.Errorf("%s failed: %w", c.Name, err)
	}
	return res, nil
}

// Redact replaces every non-empty secret in text with ****.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, "****")
	}
	return text
}
