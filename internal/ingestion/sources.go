package ingestion

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExtensions lists the file extensions picked up when a glob matches
// a directory tree without naming an extension.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".rst", ".html", ".htm"}

// ExpandGlobs resolves doublestar patterns (e.g. "docs/**/*.md") to file
// sources in lexical order. A pattern naming a directory indexes every file
// with a DefaultExtensions suffix below it. Excludes are matched against the
// same paths and duplicates are removed. A pattern matching no files is an
// error so a typo cannot produce an empty index.
func ExpandGlobs(patterns, excludes []string) ([]Source, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range patterns {
		pattern = filepath.Clean(pattern)
		dirOnly := false
		if fi, err := os.Stat(pattern); err == nil && fi.IsDir() {
			pattern = filepath.Join(pattern, "**", "*")
			dirOnly = true
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("ingestion: bad glob %q: %w", pattern, err)
		}

		found := 0
		for _, m := range matches {
			fi, err := os.Stat(m)
			if err != nil || fi.IsDir() {
				continue
			}
			if dirOnly && !hasDocExtension(m) {
				continue
			}
			found++
			if excluded(m, excludes) || seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
		if found == 0 {
			return nil, fmt.Errorf("ingestion: glob %q matched no files", pattern)
		}
	}

	slices.Sort(paths)
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = Source{Path: p}
	}
	return sources, nil
}

// URLSources validates raw URLs and returns them as sources in input order.
func URLSources(raw []string) ([]Source, error) {
	sources := make([]Source, 0, len(raw))
	for _, r := range raw {
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("ingestion: invalid URL %q", r)
		}
		sources = append(sources, Source{URL: u.String()})
	}
	return sources, nil
}

// hasDocExtension reports whether path ends in one of DefaultExtensions.
func hasDocExtension(path string) bool {
	return slices.Contains(DefaultExtensions, strings.ToLower(filepath.Ext(path)))
}

// excluded reports whether path matches any exclude pattern.
func excluded(path string, excludes []string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range excludes {
		if ok, err := doublestar.Match(filepath.ToSlash(pattern), slashed); err == nil && ok {
			return true
		}
	}
	return false
}
