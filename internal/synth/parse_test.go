package synth

import "testing"

func Test_ParseReply(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		reply     string
		wantText  string
		wantScore float64
		wantOK    bool
	}{
		{"canonical", "Answer: Acme Corp joined.\nScore: 85", "Acme Corp joined.", 85, true},
		{"lowercase labels", "answer: yes\nscore: 3", "yes", 3, true},
		{"crlf", "Answer: yes\r\nScore: 70\r\n", "yes", 70, true},
		{"markdown bold", "**Answer:** bold\n**Score:** 64", "bold", 64, true},
		{"percent", "Answer: p\nScore: 90%", "p", 90, true},
		{"out of 100", "Answer: p\nScore: 75/100", "p", 75, true},
		{"decimal", "Answer: d\nScore: 42.5", "d", 42.5, true},
		{"clamped high", "Answer: h\nScore: 250", "h", 100, true},
		{"clamped low", "Answer: l\nScore: -5", "l", 0, true},
		{"last score line wins", "Answer: a\nScore: 10\nmore text\nScore: 20", "a\nScore: 10\nmore text", 20, true},
		{"multi-line answer", "Answer: line one\nline two\n\nScore: 50", "line one\nline two", 50, true},
		{"helpful answer label", "Helpful Answer: ok\nScore: 1", "ok", 1, true},
		{"no score", "  Just an answer.  ", "Just an answer.", 0, false},
		{"no score with label", "Answer: labelled", "labelled", 0, false},
		{"unparsable score", "Answer: x\nScore: high", "x\nScore: high", 0, false},
		{"score only", "Score: 80", "", 80, true},
		{"empty", "", "", 0, false},
		{"score first", "Score: 80\nAnswer: Acme joined.", "Acme joined.", 80, true},
		{"score first multi-line", "**Score:** 60\n\nAnswer: one\ntwo", "one\ntwo", 60, true},
		{"inline score", "Answer: Acme joined. Score: 80", "Acme joined.", 80, true},
		{"inline bold score", "**Answer:** yes **Score:** 90%", "yes", 90, true},
		{"inline score on last line", "Answer: first\nsecond Score: 30/100", "first\nsecond", 30, true},
		{"score word inside answer", "Answer: the underscore: 5 rule", "the underscore: 5 rule", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			text, score, ok := parseReply(tc.reply)
			if text != tc.wantText || score != tc.wantScore || ok != tc.wantOK {
				t.Errorf("parseReply(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tc.reply, text, score, ok, tc.wantText, tc.wantScore, tc.wantOK)
			}
		})
	}
}

func Test_SelectBest(t *testing.T) {
	t.Parallel()
	failed := Candidate{Err: errTest}
	cases := []struct {
		name  string
		cands []Candidate
		want  int
	}{
		{"all failed", []Candidate{failed, failed}, -1},
		{"empty", nil, -1},
		{"first ok unscored", []Candidate{failed, {Text: "a"}, {Text: "b"}}, 1},
		{"highest", []Candidate{{Text: "a", HasScore: true, Score: 1}, {Text: "b", HasScore: true, Score: 2}}, 1},
		{"tie lower rank", []Candidate{{Text: "a", HasScore: true, Score: 2}, {Text: "b", HasScore: true, Score: 2}}, 0},
		{"zero score still counts", []Candidate{{Text: "a"}, {Text: "b", HasScore: true, Score: 0}}, 1},
	}
	for _, tc := range cases {
		if got := selectBest(tc.cands); got != tc.want {
			t.Errorf("%s: selectBest = %d, want %d", tc.name, got, tc.want)
		}
	}
}

var errTest = testError("failed")

type testError string

func (e testError) Error() string { return string(e) }
