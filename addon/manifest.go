package addon

import (
	"net/http"

	"github.com/samber/lo"

	"ytaddon/storage"
)

const (
	addonID     = "community.ytaddon"
	addonName   = "YouTube"
	idPrefix    = "yt_"
	genrePrefix = "genre_"

	searchCatalogID   = "ytaddon-search"
	followedCatalogID = "ytaddon-followed"

	typeMovie   = "movie"
	typeChannel = "channel"

	logoURL       = "https://www.youtube.com/s/desktop/99a30123/img/favicon_144x144.png"
	backgroundURL = "https://i.ytimg.com/vi/aqz-KE-bpKQ/maxresdefault.jpg"
)

// Version is reported in the manifest.
var Version = "1.0.0"

// Manifest is the Stremio add-on manifest.
type Manifest struct {
	ID            string          `json:"id"`
	Version       string          `json:"version"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Logo          string          `json:"logo,omitempty"`
	Background    string          `json:"background,omitempty"`
	Resources     []string        `json:"resources"`
	Types         []string        `json:"types"`
	IDPrefixes    []string        `json:"idPrefixes"`
	Catalogs      []Catalog       `json:"catalogs"`
	Configuration string          `json:"configuration,omitempty"`
	BehaviorHints map[string]bool `json:"behaviorHints,omitempty"`
}

// Catalog declares one catalog in the manifest.
type Catalog struct {
	Type   string       `json:"type"`
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Genres []string     `json:"genres,omitempty"`
	Extra  []ExtraField `json:"extra,omitempty"`
}

// ExtraField declares a catalog filter.
type ExtraField struct {
	Name       string   `json:"name"`
	IsRequired bool     `json:"isRequired"`
	Options    []string `json:"options,omitempty"`
}

// BuildManifest describes the add-on for the given settings. Followed
// channel names become the genres of the followed catalog, and baseURL
// anchors the shareable configuration link.
func BuildManifest(settings *storage.Settings, baseURL string) Manifest {
	names := lo.Uniq(lo.FilterMap(settings.Channels, func(c storage.Channel, _ int) (string, bool) {
		return c.Name, c.Name != ""
	}))

	return Manifest{
		ID:          addonID,
		Version:     Version,
		Name:        addonName,
		Description: "Search YouTube, browse followed channels and play videos through yt-dlp.",
		Logo:        logoURL,
		Background:  backgroundURL,
		Resources:   []string{"catalog", "stream"},
		Types:       []string{typeMovie, typeChannel},
		IDPrefixes:  []string{idPrefix},
		Catalogs: []Catalog{
			{
				Type:  typeMovie,
				ID:    searchCatalogID,
				Name:  "YouTube Search",
				Extra: []ExtraField{{Name: "search", IsRequired: true}},
			},
			{
				Type:   typeChannel,
				ID:     followedCatalogID,
				Name:   "Followed channels",
				Genres: names,
				Extra:  []ExtraField{{Name: "genre", Options: names}},
			},
		},
		Configuration: ConfigurationURL(baseURL, settings),
		BehaviorHints: map[string]bool{"configurable": true},
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, BuildManifest(settingsFrom(r.Context()), s.baseURL(r)))
}
