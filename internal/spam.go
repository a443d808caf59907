package contact

import (
	"regexp"
	"strings"
)

const (
	maxURLs        = 3
	maxRepeatedRun = 11
)

var (
	spamKeywordRegex = regexp.MustCompile(`(?i)\b(?:viagra|cialis|casino|poker|lottery|winner|congratulations)\b`)
	spamPhraseRegex  = regexp.MustCompile(`(?i)\b(?:click here|free money|make money fast|work from home)\b`)
	urlRegex         = regexp.MustCompile(`(?i)https?://\S+`)
	nonASCIIRunRegex = regexp.MustCompile(`[^\x00-\x7F]{20,}`)
)

// IsSpam reports whether the concatenated submission text trips any of the
// heuristics. A match is never surfaced to the sender.
func IsSpam(text string) bool {
	switch {
	case spamKeywordRegex.MatchString(text):
		return true
	case spamPhraseRegex.MatchString(text):
		return true
	case len(urlRegex.FindAllStringIndex(text, maxURLs)) >= maxURLs:
		return true
	case hasRepeatedRun(text, maxRepeatedRun):
		return true
	case nonASCIIRunRegex.MatchString(text):
		return true
	}
	return false
}

// SpamText is the text the classifier sees for a submission.
func SpamText(s Submission) string {
	return strings.Join([]string{s.Name, s.Subject, s.Message}, " ")
}

// hasRepeatedRun reports whether any rune occurs n or more times in a row,
// ignoring case. Line terminators break a run and never start one.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(s) {
		switch {
		case isLineTerminator(r):
			run = 0
			continue
		case run > 0 && r == prev:
			run++
		default:
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}
