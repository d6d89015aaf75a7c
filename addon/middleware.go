package addon

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"ytaddon/storage"
)

type ctxKey int

const settingsKey ctxKey = iota

// loadSettings attaches a settings snapshot to the request so one request
// sees one consistent configuration. A store that cannot be read yields
// the defaults.
func (s *Server) loadSettings(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings := storage.DefaultSettings()
		if s.opts.Store != nil {
			loaded, err := s.opts.Store.Load(r.Context())
			if err != nil {
				s.logger.WithError(err).Warn("settings unavailable, using defaults")
			} else {
				settings = loaded
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), settingsKey, settings)))
	})
}

// settingsFrom returns the snapshot attached by loadSettings.
func settingsFrom(ctx context.Context) *storage.Settings {
	if s, ok := ctx.Value(settingsKey).(*storage.Settings); ok {
		return s
	}
	return storage.DefaultSettings()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			entry := s.logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).Round(time.Millisecond),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request")
			} else {
				entry.Debug("request")
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// cors allows any origin; Stremio clients load add-ons cross-origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Range")
		h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
