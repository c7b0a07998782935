package synth

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// scoreLine matches a "Score: 85" line, any case, optionally as a
	// percentage or fraction of 100.
	scoreLine = regexp.MustCompile(`(?i)^\s*\**score\**\s*:\s*\**\s*([+-]?\d+(?:\.\d+)?)\s*(?:%|/\s*100)?\s*\**\s*$`)

	// trailingScore matches a score appended to the end of the answer's last
	// line, as in "Answer: yes. Score: 80".
	trailingScore = regexp.MustCompile(`(?i)\s\**score\**\s*:\s*\**\s*([+-]?\d+(?:\.\d+)?)\s*(?:%|/\s*100)?\s*\**\s*$`)

	// answerLabel matches a leading "Answer:" or "Helpful Answer:" label.
	answerLabel = regexp.MustCompile(`(?i)^\s*\**(?:helpful\s+)?answer\**\s*:\s*\**`)
)

// parseReply splits a model reply into answer text and score. The last line
// matching scoreLine supplies the score and the lines before it form the
// answer; when nothing precedes it, the lines after it do, so a reply that
// leads with its score still yields an answer. Without a score line, a score
// trailing the last line is cut from the text. Otherwise the whole reply is
// the answer and ok is false. A leading answer label is stripped in every
// case. Scores are clamped to [0, 100].
func parseReply(reply string) (text string, score float64, ok bool) {
	reply = strings.TrimSpace(strings.ReplaceAll(reply, "\r\n", "\n"))
	lines := strings.Split(reply, "\n")

	body := lines
	for i := len(lines) - 1; i >= 0; i-- {
		v, found := matchScore(scoreLine, lines[i])
		if !found {
			continue
		}
		score, ok = v, true
		body = lines[:i]
		if strings.TrimSpace(strings.Join(body, "")) == "" {
			body = lines[i+1:]
		}
		break
	}

	text = strings.Join(body, "\n")
	if !ok {
		if v, found := matchScore(trailingScore, text); found {
			score, ok = v, true
			text = text[:trailingScore.FindStringIndex(text)[0]]
		}
	}
	text = strings.TrimSpace(answerLabel.ReplaceAllString(strings.TrimSpace(text), ""))
	return text, score, ok
}

// matchScore applies re to s and returns the clamped score it captures.
func matchScore(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(v, 0), 100), true
}
