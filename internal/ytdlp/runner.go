// Package ytdlp runs the yt-dlp extractor as a child process.
//
// Arguments are always handed to the OS as a list, never through a shell.
// Every child is started in its own process group so that cancelling a
// call also reaps the ffmpeg helpers yt-dlp spawns for muxing.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultPath         = "yt-dlp"
	defaultProbeTimeout = 5 * time.Second
	defaultKillGrace    = 3 * time.Second
	stderrTailSize      = 8 << 10
)

// Sentinel errors for extractor invocations.
var (
	// ErrNotInstalled indicates the extractor binary could not be started.
	ErrNotInstalled = errors.New("yt-dlp is not installed or not executable")

	// ErrTimeout indicates a buffered call exceeded its deadline and was killed.
	ErrTimeout = errors.New("yt-dlp timed out")
)

// ExitError reports a non-zero exit of the extractor.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if msg := lastLine(e.Stderr); msg != "" {
		return fmt.Sprintf("yt-dlp exited with status %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("yt-dlp exited with status %d", e.Code)
}

// Runner starts extractor processes.
type Runner struct {
	// Path is the extractor executable. Defaults to "yt-dlp".
	Path string

	// BaseArgs are placed before everything else, e.g. "-m", "yt_dlp"
	// when Path is a python interpreter.
	BaseArgs []string

	// ExtraArgs are user supplied extractor options (cookies, proxies).
	ExtraArgs []string

	// Env is appended to the current environment of the child.
	Env []string

	// ProbeTimeout bounds the availability check. Defaults to 5 seconds.
	ProbeTimeout time.Duration

	// KillGrace is how long a cancelled streaming process gets between
	// SIGTERM and SIGKILL. Defaults to 3 seconds.
	KillGrace time.Duration

	limit *semaphore.Weighted
}

// New returns a Runner for the given executable path.
func New(path string) *Runner {
	return &Runner{
		Path:         path,
		ProbeTimeout: defaultProbeTimeout,
		KillGrace:    defaultKillGrace,
	}
}

// LimitProcesses caps the number of extractor processes alive at once.
// Zero or a negative value removes the cap.
func (r *Runner) LimitProcesses(n int64) {
	if n <= 0 {
		r.limit = nil
		return
	}
	r.limit = semaphore.NewWeighted(n)
}

// Result is the captured output of a buffered call.
type Result struct {
	Stdout []byte
	Stderr string
}

// Run executes the extractor and buffers its whole output. A positive
// timeout kills the process group once exceeded and yields ErrTimeout.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) (*Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Buffered calls have nothing worth flushing, so skip the grace period.
	p, err := r.start(runCtx, 0, args)
	if err != nil {
		// The deadline can also expire while waiting for a process slot.
		if runCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, err
	}

	stdout, readErr := io.ReadAll(p.Stdout)
	waitErr := p.Wait()
	res := &Result{Stdout: stdout, Stderr: p.Stderr()}

	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case runCtx.Err() != nil:
		return res, ErrTimeout
	case waitErr != nil:
		return res, waitErr
	case readErr != nil:
		return res, fmt.Errorf("read yt-dlp output: %w", readErr)
	}
	return res, nil
}

// Start launches a streaming extractor process. The process lives until
// it exits on its own, ctx is cancelled, or Stop is called.
func (r *Runner) Start(ctx context.Context, args ...string) (*Process, error) {
	grace := r.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}
	return r.start(ctx, grace, args)
}

// Probe checks that the extractor can be executed and returns its version.
func (r *Runner) Probe(ctx context.Context) (string, error) {
	timeout := r.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	res, err := r.Run(ctx, timeout, "--version")
	if err != nil {
		if errors.Is(err, ErrNotInstalled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}
	version := strings.TrimSpace(string(res.Stdout))
	if version == "" {
		return "", fmt.Errorf("%w: empty version output", ErrNotInstalled)
	}
	return version, nil
}

func (r *Runner) start(ctx context.Context, grace time.Duration, args []string) (*Process, error) {
	if r.limit != nil {
		if err := r.limit.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if r.limit != nil {
			r.limit.Release(1)
		}
	}

	cmd := exec.Command(r.path(), r.argv(args)...)
	cmd.SysProcAttr = sysProcAttr()
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	stderr := newTailBuffer(stderrTailSize)
	cmd.Stderr = stderr
	cmd.WaitDelay = grace + time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		release()
		return nil, fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}

	procCtx, cancel := context.WithCancel(ctx)
	p := &Process{
		Stdout:  stdout,
		cmd:     cmd,
		stderr:  stderr,
		cancel:  cancel,
		done:    make(chan struct{}),
		release: release,
	}
	go p.watch(procCtx, grace)
	return p, nil
}

func (r *Runner) path() string {
	if r.Path != "" {
		return r.Path
	}
	return defaultPath
}

func (r *Runner) argv(args []string) []string {
	argv := make([]string, 0, len(r.BaseArgs)+len(r.ExtraArgs)+len(args))
	argv = append(argv, r.BaseArgs...)
	argv = append(argv, r.ExtraArgs...)
	return append(argv, args...)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id looks like a YouTube video ID.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// WatchURL returns the canonical watch page for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
