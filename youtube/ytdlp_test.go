package youtube

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ytaddon/internal/ytdlp"
)

type fakeRunner struct {
	stdout string
	err    error
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, _ time.Duration, args ...string) (*ytdlp.Result, error) {
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return &ytdlp.Result{Stdout: []byte(f.stdout)}, nil
}

func TestYtdlpSearchByKeyword(t *testing.T) {
	runner := &fakeRunner{stdout: sampleFlatPlaylist}
	s := NewYtdlpSearcher(runner, time.Second)

	videos, err := s.SearchByKeyword(context.Background(), "never gonna", 10)
	if err != nil {
		t.Fatalf("SearchByKeyword() error = %v", err)
	}

	if got := runner.args[len(runner.args)-1]; got != "ytsearch10:never gonna" {
		t.Errorf("target = %q", got)
	}
	if runner.args[len(runner.args)-2] != "--" {
		t.Errorf("target not separated by --: %v", runner.args)
	}
	if !strings.Contains(strings.Join(runner.args, " "), "--flat-playlist -J") {
		t.Errorf("args = %v", runner.args)
	}

	if len(videos) != 2 {
		t.Fatalf("got %d videos, want 2 (non-video entries dropped)", len(videos))
	}
	if videos[0].ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg" {
		t.Errorf("ThumbnailURL = %q, want largest", videos[0].ThumbnailURL)
	}
	if want := time.Unix(1577923200, 0).UTC(); !videos[0].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", videos[0].PublishedAt, want)
	}
	if want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !videos[1].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt from upload_date = %v, want %v", videos[1].PublishedAt, want)
	}
	if videos[1].ThumbnailURL != DefaultThumbnail("xQw4w9WgXcZ") {
		t.Errorf("ThumbnailURL = %q", videos[1].ThumbnailURL)
	}
}

func TestYtdlpSearchByChannel(t *testing.T) {
	runner := &fakeRunner{stdout: sampleFlatPlaylist}
	s := NewYtdlpSearcher(runner, time.Second)

	videos, err := s.SearchByChannel(context.Background(), "@someone", 1)
	if err != nil {
		t.Fatalf("SearchByChannel() error = %v", err)
	}
	if got := runner.args[len(runner.args)-1]; got != "https://www.youtube.com/@someone/videos" {
		t.Errorf("target = %q", got)
	}
	if len(videos) != 1 {
		t.Fatalf("got %d videos, want 1", len(videos))
	}
	if videos[0].ChannelTitle != "Test Uploader" || videos[0].ChannelID != "UCuAXFkgsw1L7xaCfnd5JJOw" {
		t.Errorf("channel fields not filled from playlist: %+v", videos[0])
	}
}

func TestYtdlpSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		ref     string
		wantErr error
	}{
		{"exit error", &fakeRunner{err: &ytdlp.ExitError{Code: 1, Stderr: "ERROR: not found"}}, "@missing", ErrChannelNotFound},
		{"not installed", &fakeRunner{err: ytdlp.ErrNotInstalled}, "@x_y_z", ErrNetwork},
		{"canceled", &fakeRunner{err: context.Canceled}, "@x_y_z", context.Canceled},
		{"bad json", &fakeRunner{stdout: "not json"}, "@x_y_z", nil},
		{"bad ref", &fakeRunner{stdout: sampleFlatPlaylist}, "::", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYtdlpSearcher(tt.runner, 0).SearchByChannel(context.Background(), tt.ref, 5)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
