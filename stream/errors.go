package stream

import (
	"context"
	"errors"
	"fmt"

	"ytaddon/internal/ytdlp"
)

// Sentinel errors for format resolution and relaying.
var (
	// ErrToolUnavailable indicates the extractor binary cannot be executed.
	ErrToolUnavailable = errors.New("stream: extractor unavailable")

	// ErrTimeout indicates a buffered extractor call exceeded its deadline.
	ErrTimeout = errors.New("stream: extractor timed out")

	// ErrExtractionFailed indicates the extractor exited with a failure.
	ErrExtractionFailed = errors.New("stream: extraction failed")

	// ErrNoFormats indicates the extractor succeeded but reported no formats.
	ErrNoFormats = errors.New("stream: no formats available")

	// ErrClientDisconnected indicates the consumer went away mid-stream.
	// It is a normal outcome, not a failure.
	ErrClientDisconnected = errors.New("stream: client disconnected")

	// ErrMalformedOutput indicates the extractor output could not be decoded.
	ErrMalformedOutput = errors.New("stream: malformed extractor output")

	// ErrInvalidVideoID indicates the video ID is not a YouTube video ID.
	ErrInvalidVideoID = errors.New("stream: invalid video id")

	// ErrRelayClosed indicates the relay is shutting down and takes no new
	// sessions.
	ErrRelayClosed = errors.New("stream: relay closed")

	// ErrInvalidSelector indicates a quality or format selector could not be parsed.
	ErrInvalidSelector = errors.New("stream: invalid selector")
)

// ExtractorError carries the context of a failed extractor call.
type ExtractorError struct {
	Op      string // "resolve" or "relay"
	VideoID string
	Stderr  string
	Err     error
}

func (e *ExtractorError) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// wrapExtractorErr maps process level errors onto the stream taxonomy.
func wrapExtractorErr(op, videoID string, err error) error {
	var exitErr *ytdlp.ExitError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ytdlp.ErrNotInstalled):
		return &ExtractorError{Op: op, VideoID: videoID, Err: fmt.Errorf("%w: %v", ErrToolUnavailable, err)}
	case errors.Is(err, ytdlp.ErrTimeout):
		return &ExtractorError{Op: op, VideoID: videoID, Err: ErrTimeout}
	case errors.As(err, &exitErr):
		return &ExtractorError{Op: op, VideoID: videoID, Stderr: exitErr.Stderr,
			Err: fmt.Errorf("%w: %v", ErrExtractionFailed, exitErr)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &ExtractorError{Op: op, VideoID: videoID, Err: fmt.Errorf("%w: %v", ErrExtractionFailed, err)}
	}
}

// Kind returns a short stable label for err, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrClientDisconnected):
		return "client_disconnected"
	case errors.Is(err, ErrToolUnavailable):
		return "tool_unavailable"
	case errors.Is(err, ErrRelayClosed):
		return "shutting_down"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoFormats):
		return "no_formats"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrInvalidVideoID), errors.Is(err, ErrInvalidSelector):
		return "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
