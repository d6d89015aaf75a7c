package ytdlp

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Process is a running extractor whose stdout is consumed as a stream.
// Callers must drain or abandon Stdout before calling Wait.
type Process struct {
	Stdout io.ReadCloser

	cmd     *exec.Cmd
	stderr  *tailBuffer
	cancel  context.CancelFunc
	done    chan struct{}
	release func()

	waitOnce sync.Once
	waitErr  error
}

// PID returns the operating system process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Stop asks the process group to terminate. It does not wait.
func (p *Process) Stop() {
	p.cancel()
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Stderr returns the tail of the diagnostic output seen so far.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Wait reaps the process. It is safe to call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		close(p.done)
		p.cancel()
		p.release()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			p.waitErr = &ExitError{Code: exitErr.ExitCode(), Stderr: p.stderr.String()}
		default:
			p.waitErr = err
		}
	})
	return p.waitErr
}

// watch terminates the group when ctx ends: SIGTERM first, SIGKILL after
// grace. A zero grace goes straight to SIGKILL.
func (p *Process) watch(ctx context.Context, grace time.Duration) {
	select {
	case <-p.done:
		return
	case <-ctx.Done():
	}
	select {
	case <-p.done:
		return
	default:
	}

	if grace <= 0 {
		_ = killGroup(p.cmd)
		return
	}
	_ = terminateGroup(p.cmd)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		_ = killGroup(p.cmd)
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
