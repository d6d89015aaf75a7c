package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ytaddon/internal/ytdlp"
)

const defaultChunkSize = 32 << 10

// ProcessStarter launches a streaming extractor process.
type ProcessStarter interface {
	Start(ctx context.Context, args ...string) (*ytdlp.Process, error)
}

// Relay pipes extractor output to HTTP clients.
type Relay struct {
	runner    ProcessStarter
	logger    logrus.FieldLogger
	metrics   *Metrics
	sessions  *registry
	chunkSize int
	closed    atomic.Bool
}

// NewRelay creates a Relay backed by runner.
func NewRelay(runner ProcessStarter, logger logrus.FieldLogger, metrics *Metrics) *Relay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Relay{
		runner:    runner,
		logger:    logger,
		metrics:   metrics,
		sessions:  newRegistry(),
		chunkSize: defaultChunkSize,
	}
}

// Sessions lists the relays currently streaming, oldest first.
func (r *Relay) Sessions() []SessionInfo {
	return r.sessions.list()
}

// StopAll terminates every live session and returns how many there were.
// Sessions still waiting for a process slot are included.
func (r *Relay) StopAll() int {
	return r.sessions.stopAll()
}

// Shutdown refuses new relays with ErrRelayClosed, stops every live
// session and waits until their extractors have been reaped or ctx ends.
func (r *Relay) Shutdown(ctx context.Context) (int, error) {
	r.closed.Store(true)
	n := r.sessions.stopAll()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for r.sessions.size() > 0 {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-ticker.C:
		}
	}
	return n, nil
}

// SetHeaders writes the response headers a relay commits to.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "video/mp4")
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// Serve streams videoID selected by sel to w until the extractor finishes,
// the client goes away or req's context ends.
//
// Headers are committed only once the first byte is available. When Serve
// returns an error and the returned session reports HeadersSent false, the
// caller is free to answer with an error status. ErrClientDisconnected is
// a normal outcome. Serve returns only after the extractor has been reaped.
func (r *Relay) Serve(w http.ResponseWriter, req *http.Request, videoID string, sel Selector) (*Session, error) {
	sess := newSession(videoID, sel)
	if !ytdlp.ValidVideoID(videoID) {
		return sess, &ExtractorError{Op: "relay", VideoID: videoID, Err: ErrInvalidVideoID}
	}
	if req.Method == http.MethodHead {
		SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		sess.headersSent.Store(true)
		return sess, nil
	}

	// The session is registered before the extractor starts so StopAll
	// also reaches relays still waiting for a process slot.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	sess.stop = cancel
	r.sessions.add(sess)
	defer r.sessions.remove(sess)
	if r.closed.Load() {
		return sess, ErrRelayClosed
	}

	log := r.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"video_id":   videoID,
		"selector":   sel.String(),
	})

	proc, err := r.runner.Start(ctx, "-f", sel.String(), "-o", "-",
		"--no-part", "--no-playlist", "--quiet", "--no-warnings",
		"--", ytdlp.WatchURL(videoID))
	if err != nil {
		if sess.stopped.Load() {
			return sess, fmt.Errorf("%w: relay stopped by server", ErrClientDisconnected)
		}
		if ctx.Err() != nil {
			return sess, fmt.Errorf("%w: %v", ErrClientDisconnected, ctx.Err())
		}
		err = wrapExtractorErr("relay", videoID, err)
		log.WithError(err).Error("relay could not start extractor")
		return sess, err
	}

	sess.pid.Store(int64(proc.PID()))
	r.metrics.sessionStarted()
	log.WithField("pid", proc.PID()).Info("relay started")

	err = r.pump(ctx, w, proc, sess)

	outcome := OutcomeCompleted
	switch {
	case errors.Is(err, ErrClientDisconnected):
		outcome = OutcomeClientDisconnected
	case err != nil:
		outcome = OutcomeFailed
	}
	r.metrics.sessionFinished(outcome, sess.BytesSent())

	log = log.WithFields(logrus.Fields{
		"bytes":    sess.BytesSent(),
		"duration": time.Since(sess.StartedAt).Round(time.Millisecond),
		"outcome":  outcome,
	})
	switch outcome {
	case OutcomeCompleted:
		log.Info("relay finished")
	case OutcomeClientDisconnected:
		log.Info("relay client disconnected")
	default:
		log.WithError(err).Error("relay failed")
	}
	return sess, err
}

// pump copies extractor stdout to w through one fixed buffer. A slow
// client blocks Write, which stops reads and lets the pipe throttle the
// extractor.
func (r *Relay) pump(ctx context.Context, w http.ResponseWriter, proc *ytdlp.Process, sess *Session) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, r.chunkSize)
	clientGone := false

	for {
		n, readErr := proc.Stdout.Read(buf)
		if n > 0 {
			if !sess.headersSent.Load() {
				SetHeaders(w.Header())
				w.WriteHeader(http.StatusOK)
				sess.headersSent.Store(true)
			}
			if _, err := w.Write(buf[:n]); err != nil {
				clientGone = true
				break
			}
			sess.bytes.Add(int64(n))
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				clientGone = true
				break
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				r.logger.WithError(readErr).WithField("session_id", sess.ID).Debug("relay read ended")
			}
			break
		}
		if ctx.Err() != nil {
			clientGone = true
			break
		}
	}

	if clientGone {
		proc.Stop()
	}
	waitErr := proc.Wait()

	switch {
	case sess.stopped.Load():
		return fmt.Errorf("%w: relay stopped by server", ErrClientDisconnected)
	case clientGone || ctx.Err() != nil:
		return fmt.Errorf("%w after %d bytes", ErrClientDisconnected, sess.BytesSent())
	case waitErr != nil:
		return wrapExtractorErr("relay", sess.VideoID, waitErr)
	case !sess.headersSent.Load():
		return &ExtractorError{Op: "relay", VideoID: sess.VideoID, Stderr: proc.Stderr(),
			Err: fmt.Errorf("%w: extractor produced no output", ErrExtractionFailed)}
	}
	return nil
}
