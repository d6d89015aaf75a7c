package stream

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Session is one live relay: an extractor process bound to one HTTP
// response. It is owned by the handler goroutine that created it.
type Session struct {
	ID        string
	VideoID   string
	Selector  Selector
	StartedAt time.Time

	pid         atomic.Int64
	bytes       atomic.Int64
	headersSent atomic.Bool
	stopped     atomic.Bool
	stop        context.CancelFunc
}

func newSession(videoID string, sel Selector) *Session {
	return &Session{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		Selector:  sel,
		StartedAt: time.Now(),
		stop:      func() {},
	}
}

// BytesSent returns the number of bytes written to the client so far.
func (s *Session) BytesSent() int64 {
	return s.bytes.Load()
}

// HeadersSent reports whether the response status has been committed.
func (s *Session) HeadersSent() bool {
	return s.headersSent.Load()
}

// SessionInfo is a point in time view of a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Selector  string    `json:"selector"`
	PID       int       `json:"pid"`
	Bytes     int64     `json:"bytes"`
	StartedAt time.Time `json:"startedAt"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		VideoID:   s.VideoID,
		Selector:  s.Selector.String(),
		PID:       int(s.pid.Load()),
		Bytes:     s.bytes.Load(),
		StartedAt: s.StartedAt,
	}
}

// registry tracks live sessions for inspection and shutdown only; it
// never owns their lifecycle.
type registry struct {
	sessions *xsync.MapOf[string, *Session]
}

func newRegistry() *registry {
	return &registry{sessions: xsync.NewMapOf[string, *Session]()}
}

func (r *registry) add(s *Session) {
	r.sessions.Store(s.ID, s)
}

func (r *registry) remove(s *Session) {
	r.sessions.Delete(s.ID)
}

func (r *registry) size() int {
	return r.sessions.Size()
}

func (r *registry) list() []SessionInfo {
	out := make([]SessionInfo, 0, r.sessions.Size())
	r.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s.info())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *registry) stopAll() int {
	n := 0
	r.sessions.Range(func(_ string, s *Session) bool {
		s.stopped.Store(true)
		s.stop()
		n++
		return true
	})
	return n
}
