package ingestion

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// InferredMetadata holds descriptive fields inferred from a document's path
// or URL. Source-level metadata passed by the caller takes precedence; this
// is the best-effort fallback when nothing explicit is given.
type InferredMetadata struct {
	// Title is a human-readable name derived from the file or page name.
	Title string
	// Format is the document format (markdown, text, html, rst, or the bare
	// extension).
	Format string
	// Origin is "file" for local paths, otherwise the URL host.
	Origin string
}

// formatByExt maps lowercase file extensions to a format label.
var formatByExt = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".text":     "text",
	".html":     "html",
	".htm":      "html",
	".rst":      "rst",
}

// InferMetadata inspects a source path or URL and returns best-effort
// metadata. Unknown shapes fall back to the raw name with format "text".
//
// Examples:
//
//	docs/town-hall/q1_2023-notes.md       → "q1 2023 notes", markdown, file
//	https://example.com/blog/remote-work  → "remote work", html, example.com
//	https://example.com/                  → "example.com", html, example.com
func InferMetadata(source string) InferredMetadata {
	m := InferredMetadata{Format: "text", Origin: "file"}

	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		m.Origin = strings.ToLower(u.Hostname())
		m.Format = "html"
		base := path.Base(strings.TrimSuffix(u.Path, "/"))
		if ext := strings.ToLower(path.Ext(base)); ext != "" {
			if f, ok := formatByExt[ext]; ok {
				m.Format = f
			}
			base = strings.TrimSuffix(base, path.Ext(base))
		}
		if base == "" || base == "." || base == "/" {
			m.Title = m.Origin
		} else {
			m.Title = humanize(base)
		}
		return m
	}

	base := filepath.Base(source)
	ext := filepath.Ext(base)
	if f, ok := formatByExt[strings.ToLower(ext)]; ok {
		m.Format = f
	} else if ext != "" {
		m.Format = strings.TrimPrefix(strings.ToLower(ext), ".")
	}
	m.Title = humanize(strings.TrimSuffix(base, ext))
	return m
}

// Map returns the metadata as chunk metadata keys.
func (m InferredMetadata) Map() map[string]string {
	return map[string]string{
		"title":  m.Title,
		"format": m.Format,
		"origin": m.Origin,
	}
}

// humanize turns a slug like "q1_2023-notes" into "q1 2023 notes".
func humanize(slug string) string {
	slug = strings.NewReplacer("_", " ", "-", " ").Replace(slug)
	return strings.Join(strings.Fields(slug), " ")
}
