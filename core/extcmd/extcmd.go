// Package extcmd runs the external analyzer/transformer CLI. Invocations are
// bounded by a timeout; on expiry the process is killed so no orphan keeps
// writing into the workspace.
package extcmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stemdesk/core/apperr"
	"stemdesk/logger"
)

var progressRe = regexp.MustCompile(`(\d+)%`)

// Runner invokes one external binary with a default timeout.
type Runner struct {
	binPath string
	timeout time.Duration
}

// NewRunner creates a Runner for the binary at binPath.
func NewRunner(binPath string, timeout time.Duration) *Runner {
	return &Runner{binPath: binPath, timeout: timeout}
}

// BinPath returns the configured binary path.
func (r *Runner) BinPath() string {
	return r.binPath
}

// Options tune a single invocation.
type Options struct {
	Dir        string        // working directory
	Timeout    time.Duration // overrides the runner default when > 0
	OnProgress func(int)     // called with percentages parsed from stdout
}

// progressWriter scans stdout for "NN%" markers as they stream by.
type progressWriter struct {
	buf      *bytes.Buffer
	onUpdate func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.buf.Write(b)
	if p.onUpdate != nil {
		for _, m := range progressRe.FindAllSubmatch(b, -1) {
			if pct, convErr := strconv.Atoi(string(m[1])); convErr == nil {
				p.onUpdate(pct)
			}
		}
	}
	return n, err
}

// Run executes the binary with the given subcommand and arguments, waiting
// for completion. On non-zero exit the collaborator's stderr (falling back to
// stdout) is preserved verbatim in the returned error's detail.
func (r *Runner) Run(ctx context.Context, command string, args []string, opts Options) (string, error) {
	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	full := append([]string{command}, args...)
	cmd := exec.CommandContext(ctx, r.binPath, full...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = io.Writer(&progressWriter{buf: &stdout, onUpdate: opts.OnProgress})
	cmd.Stderr = &stderr

	logger.Debug("executing external command",
		logger.String("bin", r.binPath),
		logger.String("args", strings.Join(full, " ")))

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = strings.TrimSpace(stdout.String())
		}
		msg := "external command failed"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "external command timed out"
		}
		logger.Error(msg,
			logger.String("command", command),
			logger.Duration("elapsed", elapsed),
			logger.ErrorField(err))
		return stdout.String(), apperr.Wrap(apperr.KindCollaborator, msg, err).WithDetail(diag)
	}

	logger.Info("external command completed",
		logger.String("command", command),
		logger.Duration("elapsed", elapsed))
	return stdout.String(), nil
}
