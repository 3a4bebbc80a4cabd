package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"

	"tgstream/models"
)

type catalogLister interface {
	List() []models.CatalogEntry
}

// LibraryHandler renders the catalog as an HTML page and as JSON.
type LibraryHandler struct {
	catalog catalogLister
	baseURL string
}

// NewLibraryHandler lists entries from c. baseURL is the public URL links are built
// on; when empty it is derived from each request.
func NewLibraryHandler(c catalogLister, baseURL string) *LibraryHandler {
	return &LibraryHandler{catalog: c, baseURL: strings.TrimRight(baseURL, "/")}
}

type libraryRow struct {
	Name        string
	Size        string
	Duration    string
	StreamURL   string
	DownloadURL string
}

var libraryTemplate = template.Must(template.New("library").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Video library</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 0.4em 1em; border-bottom: 1px solid #ddd; text-align: left; }
</style>
</head>
<body>
<h1>Video library</h1>
<form action="/upload" method="post" enctype="multipart/form-data">
<input type="text" name="name" placeholder="Display name (optional)">
<input type="file" name="video" accept="video/*" required>
<button type="submit">Upload</button>
</form>
{{if .}}
<table>
<tr><th>Name</th><th>Size</th><th>Duration</th><th></th></tr>
{{range .}}<tr>
<td>{{.Name}}</td><td>{{.Size}}</td><td>{{.Duration}}</td>
<td><a href="{{.StreamURL}}">stream</a> · <a href="{{.DownloadURL}}">download</a></td>
</tr>
{{end}}</table>
{{else}}
<p>No videos yet.</p>
{{end}}
</body>
</html>
`))

// Index renders the listing page.
func (h *LibraryHandler) Index(w http.ResponseWriter, r *http.Request) {
	base := h.base(r)
	entries := h.catalog.List()
	rows := make([]libraryRow, 0, len(entries))
	for _, e := range entries {
		links := BuildLinks(base, e)
		rows = append(rows, libraryRow{
			Name:        e.DisplayName,
			Size:        humanize.Bytes(uint64(e.SizeBytes)),
			Duration:    FormatDuration(e.DurationSeconds),
			StreamURL:   links.StreamURL,
			DownloadURL: links.DownloadURL,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := libraryTemplate.Execute(w, rows); err != nil {
		log.Printf("[library] render failed: %v", err)
	}
}

// List returns the catalog as JSON.
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	base := h.base(r)
	entries := h.catalog.List()
	out := make([]models.StreamLinks, 0, len(entries))
	for _, e := range entries {
		out = append(out, BuildLinks(base, e))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *LibraryHandler) base(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return requestBase(r)
}

func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// BuildLinks derives the public stream and download URLs of an entry.
func BuildLinks(base string, e models.CatalogEntry) models.StreamLinks {
	base = strings.TrimRight(base, "/")
	escaped := url.PathEscape(e.Handle)
	return models.StreamLinks{
		Handle:      e.Handle,
		Name:        e.DisplayName,
		Size:        e.SizeBytes,
		Duration:    e.DurationSeconds,
		StreamURL:   base + "/stream/" + escaped,
		DownloadURL: base + "/download/" + escaped,
	}
}

// FormatDuration renders seconds as m:ss or h:mm:ss, "-" when unknown.
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	total := int64(*seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
