package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// excerptRunes bounds how much source text a template quotes.
const excerptRunes = 200

// Template is an offline Generator that fills fixed phrasings from the
// request. It never calls out and never fails.
type Template struct{}

// Generate implements Generator.
func (Template) Generate(_ context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindQuote:
		excerpt := firstSentence(req.SourceText)
		if excerpt == "" {
			return SkipSentinel, nil
		}
		return fmt.Sprintf("Worth a read on %s: %s", topicOrDefault(req.Topic), excerpt), nil

	case KindReply:
		var b strings.Builder
		if req.AuthorHandle != "" {
			fmt.Fprintf(&b, "@%s ", strings.TrimPrefix(req.AuthorHandle, "@"))
		}
		b.WriteString("thanks for the mention!")
		if len(req.Facts) > 0 && req.Facts[0].Description != "" {
			b.WriteString(" ")
			b.WriteString(req.Facts[0].Description)
		} else {
			fmt.Fprintf(&b, " Always happy to talk %s.", topicOrDefault(req.Topic))
		}
		return b.String(), nil

	case KindThread:
		var parts []string
		for _, f := range req.Facts {
			if f.Description != "" {
				parts = append(parts, f.Description)
			}
		}
		if len(parts) == 0 {
			return "", nil
		}
		return fmt.Sprintf("%s: %s", topicOrDefault(req.Topic), strings.Join(parts, " ")), nil
	}
	return "", fmt.Errorf("template: unknown kind %q", req.Kind)
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return "AI"
	}
	return topic
}

// firstSentence returns the text up to and including its first sentence
// terminator, capped at excerptRunes runes.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	if utf8.RuneCountInString(text) > excerptRunes {
		r := []rune(text)
		text = string(r[:excerptRunes]) + "..."
	}
	return text
}
