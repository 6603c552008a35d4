// Package runner spawns tool-provider executables and captures their
// output. It is the one place in the server where concurrency is required:
// each invocation needs two readers racing the child's exit so that a child
// which forks a background descendant holding the output pipes open cannot
// hang the server.
package runner

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toolhost-mcp/toolhost/internal/capture"
)

// killedExitCode is the stable, implementation-defined exit status reported
// for a child that was terminated by a signal rather than exiting normally.
const killedExitCode = 137

// Config tunes the runner's dangling-descendant drain policy.
type Config struct {
	// PollInterval is how often the runner checks whether the direct
	// child has exited and whether the stdout reader has drained.
	// Default 20ms.
	PollInterval time.Duration

	// DrainWindow is how long the runner waits, after the direct child
	// has exited, for the reader goroutines to observe EOF before it
	// force-closes the pipes and accepts the buffers as final. Default
	// 50ms.
	DrainWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 20 * time.Millisecond
	}
	if c.DrainWindow <= 0 {
		c.DrainWindow = 50 * time.Millisecond
	}
	return c
}

// Runner spawns provider executables and captures their combined output. A
// zero-value Runner uses default timings; prefer New for explicit config.
type Runner struct {
	cfg Config
}

// New creates a Runner with the given drain-policy configuration.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// combinedBuffer serializes writes from the two reader goroutines into a
// single chronologically-ordered byte buffer, per spec.md's "combined
// stream" requirement.
type combinedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *combinedBuffer) append(b []byte) {
	c.mu.Lock()
	c.buf.Write(b)
	c.mu.Unlock()
}

func (c *combinedBuffer) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out
}

// Run spawns execPath with the subcommand and, when argProvided is true, the
// JSON argument string (passed verbatim as the third positional argument
// even when it is empty). The child inherits no stdin and the server's
// unmodified environment and working directory.
//
// Run never returns an error: a child that fails to start, exits non-zero,
// or is killed by a signal is communicated through the returned
// capture.Result's ExitCode, exactly as spec.md §4.1 requires.
func (r *Runner) Run(ctx context.Context, execPath, subcommand string, argJSON string, argProvided bool) capture.Result {
	cfg := r.cfg.withDefaults()

	args := []string{subcommand}
	if argProvided {
		args = append(args, argJSON)
	}

	cmd := exec.CommandContext(ctx, execPath, args...)
	cmd.Stdin = nil

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return spawnFailure(err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return spawnFailure(err)
	}

	if err := cmd.Start(); err != nil {
		return spawnFailure(err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	combined := &combinedBuffer{}

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})

	eg, egCtx := errgroup.WithContext(context.Background())
	eg.Go(func() error {
		drain(stdoutPipe, &stdoutBuf, combined, stdoutDone)
		return nil
	})
	eg.Go(func() error {
		drain(stderrPipe, &stderrBuf, combined, stderrDone)
		return nil
	})
	_ = egCtx

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	var exited bool
	deadline := time.Time{}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

pollLoop:
	for {
		select {
		case waitErr = <-waitDone:
			exited = true
			deadline = time.Now().Add(cfg.DrainWindow)
		case <-ticker.C:
		}

		select {
		case <-stdoutDone:
			if exited {
				break pollLoop
			}
		default:
		}

		if exited && time.Now().After(deadline) {
			break pollLoop
		}
	}

	// Force-close both pipes so any lingering reader goroutine unblocks;
	// harmless if the child (or its descendants) already closed them.
	_ = stdoutPipe.Close()
	_ = stderrPipe.Close()
	_ = eg.Wait()

	timedOut := ctx.Err() != nil

	return capture.Result{
		ExitCode: exitCode(waitErr, exited),
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		Combined: combined.bytes(),
		TimedOut: timedOut,
	}
}

// drain copies from pipe into both streamBuf and the shared combined buffer
// until the pipe returns an error (natural EOF or a forced Close from the
// poll loop), then closes done.
func drain(pipe io.ReadCloser, streamBuf *bytes.Buffer, combined *combinedBuffer, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 32*1024)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			streamBuf.Write(chunk)
			combined.append(chunk)
		}
		if err != nil {
			return
		}
	}
}

func spawnFailure(err error) capture.Result {
	msg := []byte(err.Error())
	return capture.Result{
		ExitCode: -1,
		Stderr:   msg,
		Combined: msg,
	}
}

// exitCode derives a stable exit status from cmd.Wait's error. A nil error
// with exited=true means exit 0. A signal-terminated child reports
// killedExitCode rather than the ambiguous -1 os/exec uses internally.
func exitCode(waitErr error, exited bool) int {
	if !exited {
		return -1
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(waitErr, &exitErr); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return killedExitCode
		}
		code := exitErr.ExitCode()
		if code < 0 {
			return killedExitCode
		}
		return code
	}
	return killedExitCode
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
