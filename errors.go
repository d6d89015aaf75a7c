package ytaddon

import (
	"ytaddon/internal/retry"
	"ytaddon/storage"
	"ytaddon/stream"
	"ytaddon/youtube"
)

// Type aliases for convenient error handling.
type (
	// ExtractorError wraps a failed yt-dlp call.
	ExtractorError = stream.ExtractorError
	// SearchError wraps a failed metadata lookup.
	SearchError = youtube.SearchError
	// StorageError wraps a settings read or write failure.
	StorageError = storage.StorageError
	// ExhaustedError is returned once retries ran out.
	ExhaustedError = retry.ExhaustedError
)

// Sentinel errors exported from sub-packages.
var (
	ErrToolUnavailable    = stream.ErrToolUnavailable
	ErrTimeout            = stream.ErrTimeout
	ErrExtractionFailed   = stream.ErrExtractionFailed
	ErrNoFormats          = stream.ErrNoFormats
	ErrClientDisconnected = stream.ErrClientDisconnected
	ErrMalformedOutput    = stream.ErrMalformedOutput
	ErrInvalidVideoID     = stream.ErrInvalidVideoID
	ErrInvalidSelector    = stream.ErrInvalidSelector
	ErrRelayClosed        = stream.ErrRelayClosed

	// Metadata errors
	ErrQuotaExceeded   = youtube.ErrQuotaExceeded
	ErrInvalidKey      = youtube.ErrInvalidKey
	ErrChannelNotFound = youtube.ErrChannelNotFound
	ErrInvalidURL      = youtube.ErrInvalidURL

	// Storage errors
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	ErrInvalidInput   = storage.ErrInvalidInput
)

// ErrorKind returns a short label for err, as used in logs and metrics.
func ErrorKind(err error) string {
	return stream.Kind(err)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
