package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"ytaddon/internal/ytdlp"
)

type fakeRunner struct {
	res  *ytdlp.Result
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, _ time.Duration, args ...string) (*ytdlp.Result, error) {
	f.args = args
	return f.res, f.err
}

func TestResolver_Resolve(t *testing.T) {
	runner := &fakeRunner{res: &ytdlp.Result{Stdout: []byte(sampleInfoJSON)}}
	logger, _ := logtest.NewNullLogger()
	r := NewResolver(runner, time.Second, logger, NewMetrics(nil))

	info, err := r.Resolve(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(info.Formats) != 3 {
		t.Errorf("Resolve() formats = %d, want 3", len(info.Formats))
	}

	got := strings.Join(runner.args, " ")
	want := "-J --no-warnings --no-playlist -- https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	if got != want {
		t.Errorf("Resolve() args = %q, want %q", got, want)
	}
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		videoID string
		res     *ytdlp.Result
		err     error
		want    error
	}{
		{
			name:    "invalid id",
			videoID: "--exec=rm",
			want:    ErrInvalidVideoID,
		},
		{
			name:    "not installed",
			videoID: "dQw4w9WgXcQ",
			err:     ytdlp.ErrNotInstalled,
			want:    ErrToolUnavailable,
		},
		{
			name:    "timeout",
			videoID: "dQw4w9WgXcQ",
			res:     &ytdlp.Result{},
			err:     ytdlp.ErrTimeout,
			want:    ErrTimeout,
		},
		{
			name:    "non-zero exit",
			videoID: "dQw4w9WgXcQ",
			res:     &ytdlp.Result{Stderr: "ERROR: Private video"},
			err:     &ytdlp.ExitError{Code: 1, Stderr: "ERROR: Private video"},
			want:    ErrExtractionFailed,
		},
		{
			name:    "malformed json",
			videoID: "dQw4w9WgXcQ",
			res:     &ytdlp.Result{Stdout: []byte("<html>")},
			want:    ErrMalformedOutput,
		},
		{
			name:    "no formats",
			videoID: "dQw4w9WgXcQ",
			res:     &ytdlp.Result{Stdout: []byte(`{"id":"dQw4w9WgXcQ","formats":[]}`)},
			want:    ErrNoFormats,
		},
		{
			name:    "cancelled",
			videoID: "dQw4w9WgXcQ",
			err:     context.Canceled,
			want:    context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := logtest.NewNullLogger()
			r := NewResolver(&fakeRunner{res: tt.res, err: tt.err}, time.Second, logger, nil)
			_, err := r.Resolve(context.Background(), tt.videoID)
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolver_ExitErrorKeepsStderr(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	runner := &fakeRunner{err: &ytdlp.ExitError{Code: 1, Stderr: "ERROR: Sign in to confirm your age"}}
	_, err := NewResolver(runner, time.Second, logger, nil).Resolve(context.Background(), "dQw4w9WgXcQ")

	var extErr *ExtractorError
	if !errors.As(err, &extErr) {
		t.Fatalf("Resolve() error = %T, want *ExtractorError", err)
	}
	if !strings.Contains(extErr.Stderr, "confirm your age") {
		t.Errorf("ExtractorError.Stderr = %q", extErr.Stderr)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Errorf("last log entry = %v, want a warning", entry)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrClientDisconnected, "client_disconnected"},
		{&ExtractorError{Op: "resolve", Err: ErrTimeout}, "timeout"},
		{&ExtractorError{Op: "resolve", Err: ErrNoFormats}, "no_formats"},
		{wrapExtractorErr("relay", "x", ytdlp.ErrNotInstalled), "tool_unavailable"},
		{ErrRelayClosed, "shutting_down"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
