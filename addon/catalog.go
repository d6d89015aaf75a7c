package addon

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"ytaddon/storage"
	"ytaddon/youtube"
)

// Meta is a Stremio catalog entry.
type Meta struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Poster      string `json:"poster,omitempty"`
	PosterShape string `json:"posterShape,omitempty"`
	Background  string `json:"background,omitempty"`
	Logo        string `json:"logo,omitempty"`
	ReleaseInfo string `json:"releaseInfo,omitempty"`
}

type catalogResponse struct {
	Metas []Meta `json:"metas"`
}

// parseCatalogPath splits "id.json" or "id/extra.json" and decodes the
// extra filters.
func parseCatalogPath(rest string) (id string, extra url.Values) {
	rest = strings.TrimSuffix(rest, ".json")
	id, rawExtra, _ := strings.Cut(rest, "/")
	extra, err := url.ParseQuery(rawExtra)
	if err != nil {
		extra = url.Values{}
	}
	return id, extra
}

// handleCatalog answers catalog requests. Failures degrade to an empty
// list so the client keeps working.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	id, extra := parseCatalogPath(chi.URLParam(r, "*"))
	for k, v := range r.URL.Query() {
		if _, ok := extra[k]; !ok {
			extra[k] = v
		}
	}

	settings := settingsFrom(r.Context())
	log := s.logger.WithFields(logrus.Fields{"catalog": id, "type": typ})

	metas, err := s.catalog(r.Context(), settings, typ, id, extra)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("catalog lookup failed")
		}
		metas = []Meta{}
	}
	writeJSON(w, http.StatusOK, catalogResponse{Metas: metas})
}

func (s *Server) catalog(ctx context.Context, settings *storage.Settings, typ, id string, extra url.Values) ([]Meta, error) {
	limit := settings.ExtractionLimit

	switch {
	case typ == typeMovie && id == searchCatalogID:
		query := strings.TrimSpace(extra.Get("search"))
		if query == "" || s.opts.Sources == nil {
			return []Meta{}, nil
		}
		videos, err := s.opts.Sources.Searcher(settings).SearchByKeyword(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return videosToMetas(videos, typeMovie), nil

	case typ == typeChannel && id == followedCatalogID:
		genre := strings.TrimSpace(extra.Get("genre"))
		if genre == "" {
			return channelsToMetas(settings.Channels), nil
		}
		ch, ok := settings.ChannelByName(genre)
		if !ok || s.opts.Sources == nil {
			return []Meta{}, nil
		}
		ref := lo.CoalesceOrEmpty(ch.ChannelID, ch.URL)
		videos, err := s.opts.Sources.Searcher(settings).SearchByChannel(ctx, ref, limit)
		if err != nil {
			return nil, err
		}
		for i := range videos {
			if videos[i].ChannelThumbnail == "" {
				videos[i].ChannelThumbnail = ch.Thumbnail
			}
		}
		return videosToMetas(videos, typeChannel), nil
	}
	return []Meta{}, nil
}

func videosToMetas(videos []youtube.Video, typ string) []Meta {
	return lo.Map(videos, func(v youtube.Video, _ int) Meta {
		thumb := lo.CoalesceOrEmpty(v.ThumbnailURL, youtube.DefaultThumbnail(v.ID))
		m := Meta{
			ID:          idPrefix + v.ID,
			Type:        typ,
			Name:        v.Title,
			Description: v.Description,
			Poster:      thumb,
			PosterShape: "landscape",
			Background:  thumb,
			Logo:        v.ChannelThumbnail,
		}
		if !v.PublishedAt.IsZero() {
			m.ReleaseInfo = v.PublishedAt.Format("2006-01-02")
		}
		return m
	})
}

// channelsToMetas lists followed channels so a client without genre
// support can still pick one.
func channelsToMetas(channels []storage.Channel) []Meta {
	return lo.Map(channels, func(c storage.Channel, _ int) Meta {
		return Meta{
			ID:          genrePrefix + c.Name,
			Type:        typeChannel,
			Name:        c.Name,
			Description: "Channel: " + c.URL,
			Poster:      lo.CoalesceOrEmpty(c.Thumbnail, logoURL),
			PosterShape: "landscape",
		}
	})
}
