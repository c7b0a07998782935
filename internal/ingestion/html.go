package ingestion

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hiddenElements never contribute document text. Their subtrees are skipped.
var hiddenElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
}

// lineElements end a line of text when they close.
var lineElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true,
}

// stripHTML reduces an HTML page to its visible text: text tokens outside
// hidden subtrees, with line breaks at block boundaries and whitespace
// collapsed. Comments and attributes never reach the output.
func stripHTML(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	hidden := 0

	// A tokenizer error is io.EOF or a truncated page; either way the text
	// read so far is kept.
	for tt := z.Next(); tt != html.ErrorToken; tt = z.Next() {
		tok := z.Token()

		switch tt {
		case html.TextToken:
			if hidden == 0 {
				b.WriteString(tok.Data)
			}
			continue
		case html.StartTagToken:
			if tok.DataAtom == atom.Body {
				// An unclosed <head> ends where the body starts.
				hidden = 0
			} else if hiddenElements[tok.DataAtom] {
				hidden++
				continue
			}
		case html.SelfClosingTagToken:
		case html.EndTagToken:
			if hiddenElements[tok.DataAtom] {
				if hidden > 0 {
					hidden--
				}
				continue
			}
		default:
			continue
		}
		if hidden == 0 {
			b.WriteByte(separator(tt, tok.DataAtom))
		}
	}
	return collapseWhitespace(b.String())
}

// separator is the whitespace a tag leaves in the text: a newline for <br>
// and closing block elements, a space otherwise so inline words stay apart.
func separator(tt html.TokenType, a atom.Atom) byte {
	switch {
	case a == atom.Br:
		return '\n'
	case tt == html.EndTagToken && lineElements[a]:
		return '\n'
	default:
		return ' '
	}
}

// collapseWhitespace squeezes each line's whitespace runs to single spaces and
// keeps at most one blank line between paragraphs.
func collapseWhitespace(s string) string {
	var out []string
	blank := false
	for line := range strings.SplitSeq(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
