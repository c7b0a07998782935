package ingestion

import (
	"strings"
	"unicode"
)

// Split cuts text into chunks of at most size characters, each starting
// overlap characters before the previous chunk ended, moved forward to a
// word start when the overlap contains one. Lengths count runes so
// multi-byte text is never split inside a character. A chunk boundary is
// pulled back to the last whitespace in the second half of the window when
// there is one, so words stay whole. Leading and trailing whitespace of each
// chunk is trimmed and empty chunks are dropped.
func Split(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		for i := next; i < end; i++ {
			if i > 0 && unicode.IsSpace(runes[i-1]) {
				next = i
				break
			}
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
