package addon

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"ytaddon/internal/ytdlp"
	"ytaddon/storage"
	"ytaddon/stream"
)

type streamsResponse struct {
	Streams []stream.Descriptor `json:"streams"`
}

// strategy picks how stream lists are built for settings.
func (s *Server) strategy(settings *storage.Settings) stream.Strategy {
	if settings.StreamMode == storage.StreamModeAdvanced && s.opts.Resolver != nil {
		return &stream.DirectURLStrategy{
			Resolver:        s.opts.Resolver,
			Options:         s.opts.Rank,
			PinThroughRelay: s.opts.PinThroughRelay,
			Logger:          s.logger,
		}
	}
	return stream.RelayURLStrategy{}
}

// handleStreams lists stream descriptors for a video. Unknown IDs get an
// empty list rather than an error.
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "file")
	if raw == "" {
		raw = chi.URLParam(r, "id")
	}
	videoID := videoIDFromParam(raw)
	if !ytdlp.ValidVideoID(videoID) {
		writeJSON(w, http.StatusOK, streamsResponse{Streams: []stream.Descriptor{}})
		return
	}

	req := stream.StreamRequest{VideoID: videoID, BaseURL: s.baseURL(r)}
	streams, err := s.strategy(settingsFrom(r.Context())).Streams(r.Context(), req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).WithField("video_id", videoID).Warn("stream listing failed")
		}
		streams = []stream.Descriptor{}
	}
	writeJSON(w, http.StatusOK, streamsResponse{Streams: streams})
}

func (s *Server) handleProxyBest(w http.ResponseWriter, r *http.Request) {
	s.serveRelay(w, r, stream.Best())
}

func (s *Server) handleProxyQuality(w http.ResponseWriter, r *http.Request) {
	sel, err := stream.ParseQuality(chi.URLParam(r, "quality"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.serveRelay(w, r, sel)
}

func (s *Server) handleProxyFormat(w http.ResponseWriter, r *http.Request) {
	formatID := chi.URLParam(r, "formatID")
	if !stream.ValidFormatID(formatID) {
		http.Error(w, stream.ErrInvalidSelector.Error(), http.StatusBadRequest)
		return
	}
	s.serveRelay(w, r, stream.FormatID(formatID))
}

// serveRelay runs the relay and, when nothing was sent yet, turns a
// failure into an HTTP status.
func (s *Server) serveRelay(w http.ResponseWriter, r *http.Request, sel stream.Selector) {
	videoID := videoIDFromParam(chi.URLParam(r, "id"))
	if s.opts.Relay == nil {
		http.Error(w, "relay disabled", http.StatusServiceUnavailable)
		return
	}

	sess, err := s.opts.Relay.Serve(w, r, videoID, sel)
	if err == nil || sess.HeadersSent() || errors.Is(err, stream.ErrClientDisconnected) {
		return
	}

	status := relayStatus(err)
	s.logger.WithFields(logrus.Fields{
		"video_id": videoID,
		"selector": sel.String(),
		"status":   status,
		"kind":     stream.Kind(err),
	}).Debug("relay rejected")
	http.Error(w, http.StatusText(status), status)
}

// relayStatus maps a relay failure that happened before any output.
func relayStatus(err error) int {
	switch {
	case errors.Is(err, stream.ErrInvalidVideoID), errors.Is(err, stream.ErrInvalidSelector):
		return http.StatusBadRequest
	case errors.Is(err, stream.ErrToolUnavailable), errors.Is(err, stream.ErrRelayClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, stream.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
