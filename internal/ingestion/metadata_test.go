package ingestion

import "testing"

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		title  string
		format string
		origin string
	}{
		// ── Local files ──────────────────────────────────────────────────
		{
			name:   "markdown file",
			source: "docs/town-hall/q1_2023-notes.md",
			title:  "q1 2023 notes",
			format: "markdown",
			origin: "file",
		},
		{
			name:   "uppercase extension",
			source: "/srv/docs/README.MD",
			title:  "README",
			format: "markdown",
			origin: "file",
		},
		{
			name:   "plain text",
			source: "notes.txt",
			title:  "notes",
			format: "text",
			origin: "file",
		},
		{
			name:   "unknown extension",
			source: "data/export.csv",
			title:  "export",
			format: "csv",
			origin: "file",
		},
		{
			name:   "no extension",
			source: "CHANGELOG",
			title:  "CHANGELOG",
			format: "text",
			origin: "file",
		},
		// ── URLs ─────────────────────────────────────────────────────────
		{
			name:   "page slug",
			source: "https://example.com/blog/remote-work",
			title:  "remote work",
			format: "html",
			origin: "example.com",
		},
		{
			name:   "trailing slash",
			source: "https://Example.com/blog/remote-work/",
			title:  "remote work",
			format: "html",
			origin: "example.com",
		},
		{
			name:   "markdown over http",
			source: "https://raw.example.com/org/repo/main/docs/getting_started.md",
			title:  "getting started",
			format: "markdown",
			origin: "raw.example.com",
		},
		{
			name:   "site root",
			source: "https://example.com/",
			title:  "example.com",
			format: "html",
			origin: "example.com",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tc.source)
			if got.Title != tc.title {
				t.Errorf("Title = %q, want %q", got.Title, tc.title)
			}
			if got.Format != tc.format {
				t.Errorf("Format = %q, want %q", got.Format, tc.format)
			}
			if got.Origin != tc.origin {
				t.Errorf("Origin = %q, want %q", got.Origin, tc.origin)
			}
		})
	}
}

func TestInferredMetadata_Map(t *testing.T) {
	t.Parallel()

	m := InferMetadata("docs/faq.md").Map()
	want := map[string]string{"title": "faq", "format": "markdown", "origin": "file"}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
	if len(m) != len(want) {
		t.Errorf("unexpected keys: %v", m)
	}
}
