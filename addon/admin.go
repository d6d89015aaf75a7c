package addon

import (
	_ "embed"
	"encoding/base64"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"ytaddon/storage"
)

//go:embed admin.html.tmpl
var adminHTML string

var adminTmpl = template.Must(template.New("admin").Parse(adminHTML))

type adminPage struct {
	ManifestURL string
	InstallURL  template.URL
	APIKey      string
	Channels    string
	Settings    *storage.Settings
	FromQuery   bool
}

// handleAdmin renders the settings page. Settings passed in the query
// string (shared configuration links) pre-fill the form instead of the
// stored ones.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	settings := settingsFrom(r.Context())
	manifestURL := s.baseURL(r) + "/manifest.json"
	page := adminPage{
		ManifestURL: manifestURL,
		InstallURL:  template.URL("stremio://" + strings.TrimPrefix(strings.TrimPrefix(manifestURL, "https://"), "http://")),
		APIKey:      settings.APIKey,
		Channels:    FormatChannelLines(settings.Channels),
		Settings:    settings,
	}

	if q, ok := ParseLegacyQuery(r.URL.Query()); ok {
		page.FromQuery = true
		if q.APIKey != "" {
			page.APIKey = q.APIKey
		}
		if len(q.Channels) > 0 {
			page.Channels = FormatChannelLines(q.Channels)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := adminTmpl.Execute(w, page); err != nil {
		s.logger.WithError(err).Error("rendering admin page failed")
	}
}

// LegacyQuery is configuration carried in an admin page link.
type LegacyQuery struct {
	APIKey   string
	Channels []storage.Channel
}

// ParseLegacyQuery reads apiKey plus channels either as plain text (with
// literal "\n" separators) or as base64 in channels_b64. ok is false when
// the query carries no configuration.
func ParseLegacyQuery(q url.Values) (LegacyQuery, bool) {
	var out LegacyQuery
	out.APIKey = strings.TrimSpace(q.Get("apiKey"))

	raw := ""
	if b64 := q.Get("channels_b64"); b64 != "" {
		if decoded, err := decodeBase64(b64); err == nil {
			raw = decoded
		}
	} else if plain := q.Get("channels"); plain != "" {
		raw = strings.ReplaceAll(plain, `\n`, "\n")
	}
	out.Channels = ParseChannelLines(raw)

	return out, out.APIKey != "" || len(out.Channels) > 0
}

func decodeBase64(s string) (string, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), nil
		}
	}
	return "", base64.CorruptInputError(0)
}

var lineFieldSep = regexp.MustCompile(`\t|\s{2,}`)

// ParseChannelLines reads one channel per line as "NAME<tab>URL" (two or
// more spaces also separate). A line with a single field is a bare URL.
func ParseChannelLines(raw string) []storage.Channel {
	var out []storage.Channel
	for _, line := range strings.Split(raw, "\n") {
		fields := lo.Compact(lo.Map(lineFieldSep.Split(strings.TrimSpace(line), -1), func(f string, _ int) string {
			return strings.TrimSpace(f)
		}))
		switch {
		case len(fields) >= 2:
			out = append(out, storage.Channel{Name: fields[0], URL: fields[1]})
		case len(fields) == 1:
			out = append(out, storage.Channel{URL: fields[0]})
		}
	}
	return out
}

// ConfigurationURL links the settings page pre-filled with settings, in the
// query form ParseLegacyQuery reads. It is empty when there is nothing to
// share.
func ConfigurationURL(baseURL string, settings *storage.Settings) string {
	q := url.Values{}
	if settings.APIKey != "" {
		q.Set("apiKey", settings.APIKey)
	}
	if len(settings.Channels) > 0 {
		q.Set("channels", FormatChannelLines(settings.Channels))
	}
	if len(q) == 0 {
		return ""
	}
	return baseURL + "/?" + q.Encode()
}

// FormatChannelLines is the inverse of ParseChannelLines.
func FormatChannelLines(channels []storage.Channel) string {
	return strings.Join(lo.Map(channels, func(c storage.Channel, _ int) string {
		if c.Name == "" {
			return c.URL
		}
		return c.Name + "\t" + c.URL
	}), "\n")
}
