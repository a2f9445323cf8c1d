// Package search provides the lexical building blocks of the subject engine:
// a deterministic, Unicode-aware tokenizer, set and vector similarity
// measures (Jaccard, TF-IDF cosine) and a small topical lexicon.
//
// Everything in this package is pure and safe for concurrent use:
//
//   - No logging in the library (callers decide how/what to log)
//   - No I/O; statistics such as document frequencies are passed in
//   - Empty inputs are always valid and score 0
package search

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinTokenRunes is the minimum rune length a token must exceed to be kept.
const MinTokenRunes = 2

// nonWordRE matches anything that is not a letter, digit or whitespace.
var nonWordRE = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Tokenize lower-cases text, replaces punctuation and symbols with spaces,
// splits on whitespace and drops short tokens and stopwords. The result keeps
// input order and duplicates, so callers can derive term frequencies from it.
//
// Tokenize is idempotent: tokenizing strings.Join(Tokenize(s), " ") returns
// the same sequence.
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s := norm.NFC.String(strings.ToLower(text))
	s = nonWordRE.ReplaceAllString(s, " ")
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if utf8.RuneCountInString(w) <= MinTokenRunes {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TokenizeAll tokenizes each text and concatenates the results in order.
func TokenizeAll(texts []string) []string {
	var out []string
	for _, t := range texts {
		out = append(out, Tokenize(t)...)
	}
	return out
}

// Frequencies returns the occurrence count of each token.
func Frequencies(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

// Set returns the distinct tokens as a set.
func Set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// stopwords covers French and English function words longer than two runes;
// shorter words are already removed by the length filter.
var stopwords = func() map[string]struct{} {
	words := []string{
		// French
		"les", "une", "des", "est", "sont", "que", "qui", "aux", "cet", "cette",
		"nous", "vous", "ils", "elles", "dans", "sur", "pour", "par", "avec",
		"mais", "donc", "car", "pas", "plus", "tout", "tous", "ces", "son", "ses",
		"leur", "leurs", "mon", "mes", "ton", "tes", "notre", "votre", "été",
		"être", "avoir", "fait", "comme", "quoi", "alors", "aussi",
		// English
		"the", "and", "for", "are", "was", "were", "this", "that", "these",
		"those", "with", "from", "have", "has", "had", "but", "not", "you",
		"your", "they", "them", "their", "its", "our", "what", "which", "who",
		"will", "would", "can", "could", "should", "about", "into", "than",
		"then", "there", "here", "just", "also", "been", "being", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
