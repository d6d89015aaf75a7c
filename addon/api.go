package addon

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"ytaddon/storage"
	"ytaddon/youtube"
)

// enrichTimeout bounds the Data API lookups made while saving settings.
const enrichTimeout = 20 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsFrom(r.Context()))
}

// configRequest is a partial settings update. Absent fields keep their
// current value.
type configRequest struct {
	APIKey          *string             `json:"apiKey"`
	Channels        []storage.Channel   `json:"channels"`
	ExtractionLimit *int                `json:"extractionLimit"`
	SearchMode      *storage.SearchMode `json:"searchMode"`
	StreamMode      *storage.StreamMode `json:"streamMode"`
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "settings store disabled"})
		return
	}

	var req configRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	next := settingsFrom(r.Context()).Clone()
	if req.APIKey != nil {
		next.APIKey = strings.TrimSpace(*req.APIKey)
	}
	if req.Channels != nil {
		next.Channels = s.enrichChannels(r.Context(), next.APIKey, req.Channels)
	}
	if req.ExtractionLimit != nil {
		next.ExtractionLimit = *req.ExtractionLimit
	}
	if req.SearchMode != nil {
		next.SearchMode = *req.SearchMode
	}
	if req.StreamMode != nil {
		next.StreamMode = *req.StreamMode
	}

	saved, err := s.opts.Store.Save(r.Context(), next)
	if err != nil {
		s.logger.WithError(err).Error("saving settings failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not save settings"})
		return
	}
	s.logger.WithFields(logrus.Fields{
		"channels":    len(saved.Channels),
		"search_mode": saved.SearchMode,
		"stream_mode": saved.StreamMode,
	}).Info("settings saved")
	writeJSON(w, http.StatusOK, saved)
}

// enrichChannels names unnamed channels after their URL and, when an API
// key is available, fills in the channel ID, official title and avatar.
// Lookup failures leave the entry as entered.
func (s *Server) enrichChannels(ctx context.Context, apiKey string, in []storage.Channel) []storage.Channel {
	channels := lo.FilterMap(in, func(c storage.Channel, _ int) (storage.Channel, bool) {
		c.URL = strings.TrimSpace(c.URL)
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			c.Name = youtube.DeriveChannelName(c.URL)
		}
		return c, c.URL != ""
	})
	if apiKey == "" || s.opts.Sources == nil {
		return channels
	}

	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()
	for i, c := range channels {
		info, err := s.opts.Sources.ChannelInfo(ctx, apiKey, c.URL)
		if err != nil {
			s.logger.WithError(err).WithField("channel", c.URL).Warn("channel lookup failed")
			continue
		}
		channels[i].ChannelID = info.ID
		channels[i].Thumbnail = info.ThumbnailURL
		if info.Title != "" {
			channels[i].Name = info.Title
		}
	}
	return channels
}

type channelEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels := lo.Map(settingsFrom(r.Context()).Channels, func(c storage.Channel, _ int) channelEntry {
		return channelEntry{Name: c.Name, URL: c.URL}
	})
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := []any{}
	if s.opts.Relay != nil {
		sessions = lo.ToAnySlice(s.opts.Relay.Sessions())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type healthResponse struct {
	Status   string `json:"status"`
	Ytdlp    string `json:"ytdlp,omitempty"`
	Error    string `json:"error,omitempty"`
	Sessions int    `json:"sessions"`
}

// handleHealth reports the extractor's availability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Relay != nil {
		resp.Sessions = len(s.opts.Relay.Sessions())
	}
	if s.opts.Prober == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ProbeTimeout)
	defer cancel()
	version, err := s.opts.Prober.Probe(ctx)
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Ytdlp = version
	writeJSON(w, http.StatusOK, resp)
}
