package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/quality"
)

const (
	// quoteSummaryRunes caps the summary part of an over-long quote post.
	quoteSummaryRunes = 250
	quoteEllipsis     = "...\n"

	// replyTrimRunes is how far under the limit an over-long reply is cut
	// before the ellipsis is appended.
	replyTrimRunes = 10
	replyEllipsis  = "..."
)

// blockedPhrases are case-folded openings of placeholder output.
// No empty phrase: as a prefix it would match everything.
var blockedPhrases = []string{
	"automated",
	"this is an automated post",
	"generated post",
	"...",
}

// StatusURL returns the public link of a post.
func StatusURL(externalID string) string {
	return "https://x.com/i/web/status/" + externalID
}

// isEmptyReply reports whether a generated reply is empty or the skip
// sentinel. Replies are not checked against blockedPhrases.
func isEmptyReply(text string) bool {
	folded := quality.Fold(strings.TrimSpace(text))
	return folded == "" || folded == quality.Fold(generate.SkipSentinel)
}

// isBlocked reports whether generated post text is empty, the skip
// sentinel, or placeholder output.
func isBlocked(text string) bool {
	if isEmptyReply(text) {
		return true
	}
	folded := quality.Fold(strings.TrimSpace(text))
	for _, phrase := range blockedPhrases {
		if phrase != "" && strings.HasPrefix(folded, phrase) {
			return true
		}
	}
	return false
}

// ComposeQuote joins a summary and the quoted post's link. When the result
// exceeds limit runes the summary is cut (to at most 250 runes) and marked
// with an ellipsis so the link always survives.
func ComposeQuote(summary, url string, limit int) string {
	summary = strings.TrimSpace(summary)
	text := summary + "\n\n" + url
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	keep := limit - utf8.RuneCountInString(quoteEllipsis) - utf8.RuneCountInString(url)
	if keep > quoteSummaryRunes {
		keep = quoteSummaryRunes
	}
	return truncateRunes(summary, keep) + quoteEllipsis + url
}

// TruncateReply cuts a reply over limit runes to limit-10 runes plus "...".
func TruncateReply(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return truncateRunes(text, limit-replyTrimRunes) + replyEllipsis
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
