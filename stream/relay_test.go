package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"ytaddon/internal/ytdlp"
)

const testVideoID = "dQw4w9WgXcQ"

// helperRunner re-executes the test binary as a fake extractor.
func helperRunner(mode string) *ytdlp.Runner {
	r := ytdlp.New(os.Args[0])
	r.BaseArgs = []string{"-test.run=TestHelperProcess", "--"}
	r.Env = []string{"GO_WANT_HELPER_PROCESS=1", "STREAM_HELPER_MODE=" + mode}
	r.KillGrace = 500 * time.Millisecond
	return r
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("STREAM_HELPER_MODE") {
	case "json":
		fmt.Print(sampleInfoJSON)
	case "small":
		fmt.Print("hello world")
	case "fail":
		fmt.Fprintln(os.Stderr, "ERROR: [youtube] dQw4w9WgXcQ: Video unavailable")
		os.Exit(1)
	case "partial":
		fmt.Print("partial")
		os.Stdout.Sync()
		time.Sleep(100 * time.Millisecond)
		fmt.Fprintln(os.Stderr, "ERROR: fragment 3 not found")
		os.Exit(1)
	case "silent":
	case "sleep":
		time.Sleep(time.Minute)
	case "stream":
		buf := make([]byte, 32<<10)
		for {
			if _, err := os.Stdout.Write(buf); err != nil {
				os.Exit(0)
			}
		}
	}
	os.Exit(0)
}

// brokenWriter accepts limit bytes and then fails like a closed socket.
type brokenWriter struct {
	mu      sync.Mutex
	header  http.Header
	status  int
	written int
	limit   int
	onWrite func()
}

func newBrokenWriter(limit int) *brokenWriter {
	return &brokenWriter{header: make(http.Header), limit: limit}
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == 0 {
		w.status = code
	}
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onWrite != nil {
		w.onWrite()
		w.onWrite = nil
	}
	if w.written >= w.limit {
		return 0, errors.New("write: broken pipe")
	}
	w.written += len(p)
	return len(p), nil
}

func newTestRelay(mode string) (*Relay, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewRelay(helperRunner(mode), logger, NewMetrics(nil)), hook
}

func errorEntries(hook *logtest.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			n++
		}
	}
	return n
}

func TestRelay_Completes(t *testing.T) {
	relay, hook := newTestRelay("small")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	sess, err := relay.Serve(rec, req, testVideoID, Best())
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "hello world")
	}
	wantHeaders := map[string]string{
		"Content-Type":  "video/mp4",
		"Accept-Ranges": "bytes",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, v := range wantHeaders {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if sess.BytesSent() != int64(len("hello world")) {
		t.Errorf("BytesSent() = %d", sess.BytesSent())
	}
	if errorEntries(hook) != 0 {
		t.Errorf("unexpected error logs: %v", hook.AllEntries())
	}
	if n := len(relay.Sessions()); n != 0 {
		t.Errorf("Sessions() = %d after completion, want 0", n)
	}
}

func TestRelay_FailureBeforeFirstByte(t *testing.T) {
	for _, mode := range []string{"fail", "silent"} {
		t.Run(mode, func(t *testing.T) {
			relay, hook := newTestRelay(mode)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

			sess, err := relay.Serve(rec, req, testVideoID, Best())
			if !errors.Is(err, ErrExtractionFailed) {
				t.Fatalf("Serve() error = %v, want ErrExtractionFailed", err)
			}
			if sess.HeadersSent() {
				t.Error("HeadersSent() = true, want false")
			}
			if rec.Header().Get("Content-Type") != "" || rec.Body.Len() != 0 {
				t.Error("relay committed a response before failing")
			}
			if errorEntries(hook) == 0 {
				t.Error("failure was not logged as an error")
			}
		})
	}
}

func TestRelay_FailureAfterFirstByte(t *testing.T) {
	relay, _ := newTestRelay("partial")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	sess, err := relay.Serve(rec, req, testVideoID, Best())
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Serve() error = %v, want ErrExtractionFailed", err)
	}
	if !sess.HeadersSent() {
		t.Error("HeadersSent() = false, want true")
	}
	if rec.Body.String() != "partial" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "partial")
	}
}

func TestRelay_ClientDisconnect(t *testing.T) {
	relay, hook := newTestRelay("stream")
	w := newBrokenWriter(2 << 20)
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	done := make(chan error, 1)
	var sess *Session
	go func() {
		var err error
		sess, err = relay.Serve(w, req, testVideoID, Best())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClientDisconnected) {
			t.Fatalf("Serve() error = %v, want ErrClientDisconnected", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("relay did not terminate after the client went away")
	}

	if sess.BytesSent() < 2<<20 {
		t.Errorf("BytesSent() = %d, want at least 2 MiB", sess.BytesSent())
	}
	if w.status != http.StatusOK {
		t.Errorf("status = %d, want 200", w.status)
	}
	if errorEntries(hook) != 0 {
		t.Errorf("disconnect logged as error: %v", hook.AllEntries())
	}
	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "relay client disconnected" && e.Data["outcome"] == OutcomeClientDisconnected {
			found = true
		}
	}
	if !found {
		t.Error("missing client disconnected log entry")
	}
}

func TestRelay_RequestContextCancelled(t *testing.T) {
	relay, _ := newTestRelay("sleep")
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	time.AfterFunc(200*time.Millisecond, cancel)
	start := time.Now()
	sess, err := relay.Serve(rec, req, testVideoID, Best())
	if !errors.Is(err, ErrClientDisconnected) {
		t.Fatalf("Serve() error = %v, want ErrClientDisconnected", err)
	}
	if sess.HeadersSent() {
		t.Error("HeadersSent() = true for a relay that never produced output")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Serve() returned %v after cancel", elapsed)
	}
}

func TestRelay_SessionsAndStopAll(t *testing.T) {
	relay, hook := newTestRelay("stream")
	w := newBrokenWriter(1 << 40)
	var seen []SessionInfo
	w.onWrite = func() {
		seen = relay.Sessions()
		relay.StopAll()
	}
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	done := make(chan error, 1)
	go func() {
		_, err := relay.Serve(w, req, testVideoID, AtMost(720))
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClientDisconnected) {
			t.Fatalf("Serve() error = %v, want ErrClientDisconnected", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("StopAll did not end the relay")
	}

	if len(seen) != 1 {
		t.Fatalf("Sessions() during stream = %d, want 1", len(seen))
	}
	if seen[0].VideoID != testVideoID || seen[0].Selector != AtMost(720).String() || seen[0].PID == 0 {
		t.Errorf("session info = %+v", seen[0])
	}
	if errorEntries(hook) != 0 {
		t.Errorf("stop logged as error: %v", hook.AllEntries())
	}
}

// waitForSessions polls until the relay lists n sessions.
func waitForSessions(t *testing.T, relay *Relay, n int) []SessionInfo {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s := relay.Sessions(); len(s) == n {
			return s
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Sessions() never reached %d", n)
	return nil
}

func TestRelay_StopAllReachesQueuedSession(t *testing.T) {
	runner := helperRunner("stream")
	runner.LimitProcesses(1)
	holder, err := runner.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		holder.Stop()
		_ = holder.Wait()
	}()

	logger, hook := logtest.NewNullLogger()
	relay := NewRelay(runner, logger, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	done := make(chan error, 1)
	go func() {
		_, err := relay.Serve(rec, req, testVideoID, Best())
		done <- err
	}()

	queued := waitForSessions(t, relay, 1)
	if queued[0].PID != 0 {
		t.Errorf("queued session PID = %d, want 0", queued[0].PID)
	}
	if n := relay.StopAll(); n != 1 {
		t.Errorf("StopAll() = %d, want 1", n)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClientDisconnected) {
			t.Fatalf("Serve() error = %v, want ErrClientDisconnected", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("queued relay ignored StopAll")
	}
	if rec.Body.Len() != 0 {
		t.Error("stopped relay wrote a body")
	}
	if errorEntries(hook) != 0 {
		t.Errorf("stop logged as error: %v", hook.AllEntries())
	}
}

func TestRelay_Shutdown(t *testing.T) {
	relay, _ := newTestRelay("stream")
	w := newBrokenWriter(1 << 40)
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+testVideoID, nil)

	done := make(chan error, 1)
	go func() {
		_, err := relay.Serve(w, req, testVideoID, Best())
		done <- err
	}()
	waitForSessions(t, relay, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := relay.Shutdown(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Shutdown() = %d, %v, want 1, nil", n, err)
	}
	if s := relay.Sessions(); len(s) != 0 {
		t.Errorf("Sessions() after Shutdown = %d, want 0", len(s))
	}
	if err := <-done; !errors.Is(err, ErrClientDisconnected) {
		t.Errorf("Serve() error = %v, want ErrClientDisconnected", err)
	}

	rec := httptest.NewRecorder()
	if _, err := relay.Serve(rec, req, testVideoID, Best()); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("Serve() after Shutdown error = %v, want ErrRelayClosed", err)
	}
}

func TestRelay_Head(t *testing.T) {
	relay := NewRelay(ytdlp.New("/nonexistent/yt-dlp"), nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/proxy/"+testVideoID, nil)

	if _, err := relay.Serve(rec, req, testVideoID, Best()); err != nil {
		t.Fatalf("Serve(HEAD) error = %v", err)
	}
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("HEAD response = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestRelay_Errors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	tests := []struct {
		name    string
		runner  *ytdlp.Runner
		videoID string
		want    error
	}{
		{"invalid id", helperRunner("small"), "../../etc", ErrInvalidVideoID},
		{"tool missing", ytdlp.New("/nonexistent/yt-dlp"), testVideoID, ErrToolUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := NewRelay(tt.runner, logger, nil)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/proxy/x", nil)
			sess, err := relay.Serve(rec, req, tt.videoID, Best())
			if !errors.Is(err, tt.want) {
				t.Errorf("Serve() error = %v, want %v", err, tt.want)
			}
			if sess.HeadersSent() {
				t.Error("HeadersSent() = true")
			}
		})
	}
}

func TestResolver_WithProcess(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	r := NewResolver(helperRunner("json"), 10*time.Second, logger, nil)
	info, err := r.Resolve(context.Background(), testVideoID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ranked := Rank(info.Formats, DefaultRankOptions())
	if len(ranked) != 1 || ranked[0].ID != "18" {
		t.Errorf("Rank() = %v, want [18]", ids(ranked))
	}
	if !strings.HasPrefix(ranked[0].URL, "https://") {
		t.Errorf("URL = %q", ranked[0].URL)
	}
}
