package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	heuristicTitleWords = 8
	heuristicTitleRunes = 70
)

var (
	urlRE      = regexp.MustCompile(`https?://\S+`)
	mentionRE  = regexp.MustCompile(`<@!?\d+>`)
	sentenceRE = regexp.MustCompile(`[.?!]`)
	trailingRE = regexp.MustCompile(`[,;:]+$`)
)

// HeuristicTitle derives a short title from the first sentence of text:
// URLs and mentions are dropped, at most eight words are kept, the first
// letter is upper-cased for locale and the result is capped at 70 runes.
func HeuristicTitle(text string, locale language.Tag) string {
	cleaned := strings.TrimSpace(mentionRE.ReplaceAllString(urlRE.ReplaceAllString(text, ""), ""))
	if cleaned == "" {
		return ""
	}
	first := sentenceRE.Split(cleaned, 2)[0]

	words := make([]string, 0, heuristicTitleWords)
	for _, w := range strings.Fields(first) {
		if utf8.RuneCountInString(w) <= 1 {
			continue
		}
		words = append(words, w)
		if len(words) == heuristicTitleWords {
			break
		}
	}
	title := strings.Join(words, " ")
	if title == "" {
		return ""
	}

	if locale == language.Und {
		locale = language.English
	}
	r, size := utf8.DecodeRuneInString(title)
	title = cases.Upper(locale).String(string(r)) + title[size:]

	title = trailingRE.ReplaceAllString(title, "")
	return strings.TrimSpace(clipRunes(title, heuristicTitleRunes))
}
