package stream

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ytaddon/internal/ytdlp"
)

const defaultResolveTimeout = 40 * time.Second

// BufferedRunner runs an extractor call to completion.
type BufferedRunner interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) (*ytdlp.Result, error)
}

// FormatResolver lists the formats available for a video.
type FormatResolver interface {
	Resolve(ctx context.Context, videoID string) (*Info, error)
}

// Resolver asks the extractor for a video's format list.
type Resolver struct {
	runner  BufferedRunner
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *Metrics
}

// NewResolver creates a Resolver. A non-positive timeout uses 40 seconds.
func NewResolver(runner BufferedRunner, timeout time.Duration, logger logrus.FieldLogger, metrics *Metrics) *Resolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{runner: runner, timeout: timeout, logger: logger, metrics: metrics}
}

// Resolve runs `yt-dlp -J` for videoID. It returns ErrNoFormats when the
// extractor succeeded but listed nothing.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (*Info, error) {
	if !ytdlp.ValidVideoID(videoID) {
		return nil, &ExtractorError{Op: "resolve", VideoID: videoID, Err: ErrInvalidVideoID}
	}

	start := time.Now()
	info, err := r.resolve(ctx, videoID)
	r.metrics.resolved(time.Since(start), err)

	log := r.logger.WithFields(logrus.Fields{
		"video_id": videoID,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		log.WithError(err).WithField("kind", Kind(err)).Warn("format resolution failed")
		return nil, err
	}
	log.WithField("formats", len(info.Formats)).Debug("formats resolved")
	return info, nil
}

func (r *Resolver) resolve(ctx context.Context, videoID string) (*Info, error) {
	res, err := r.runner.Run(ctx, r.timeout,
		"-J", "--no-warnings", "--no-playlist", "--", ytdlp.WatchURL(videoID))
	if err != nil {
		return nil, wrapExtractorErr("resolve", videoID, err)
	}

	info, err := ParseInfo(res.Stdout)
	if err != nil {
		return nil, &ExtractorError{Op: "resolve", VideoID: videoID, Stderr: res.Stderr, Err: err}
	}
	if len(info.Formats) == 0 {
		return nil, &ExtractorError{Op: "resolve", VideoID: videoID, Stderr: res.Stderr, Err: ErrNoFormats}
	}
	return info, nil
}

// IsFallbackCause reports whether err should degrade a stream listing to
// the fixed relay tiers rather than fail it.
func IsFallbackCause(err error) bool {
	return errors.Is(err, ErrNoFormats) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrMalformedOutput) ||
		errors.Is(err, ErrToolUnavailable)
}
