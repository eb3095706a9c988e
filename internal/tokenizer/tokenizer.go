// Package tokenizer splits raw decision text into lines and positional word
// tokens. A token is a maximal run of Unicode letters or digits; everything
// else separates tokens. Character offsets are rune offsets into the line,
// so they are stable for Hebrew and other non-ASCII text.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is one word occurrence within a line.
type Token struct {
	LineNo    int    // 1-based line number
	Word      string // normalized (lowercased) token text
	CharStart int    // rune offset of the first rune, inclusive
	CharEnd   int    // rune offset past the last rune, exclusive
	IdxInLine int    // 0-based token index within the line
}

// SplitLines normalizes all line-ending variants to '\n' and splits. A
// trailing newline yields a final empty line, keeping line counts identical
// to the source text.
func SplitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}

// Tokenize splits raw text into lines and the full ordered token stream.
// Identical input always yields an identical stream.
func Tokenize(raw string) ([]string, []Token) {
	lines := SplitLines(raw)
	tokens := make([]Token, 0, len(raw)/8)
	for i, line := range lines {
		tokens = append(tokens, TokenizeLine(line, i+1)...)
	}
	return lines, tokens
}

// TokenizeLine scans a single line for tokens. IdxInLine slots are assigned
// only to tokens that survive normalization.
func TokenizeLine(line string, lineNo int) []Token {
	var tokens []Token
	idx := 0
	runeIdx := 0
	runStart := -1
	var run strings.Builder

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		word := NormalizeWord(run.String())
		if word != "" {
			tokens = append(tokens, Token{
				LineNo:    lineNo,
				Word:      word,
				CharStart: runStart,
				CharEnd:   end,
				IdxInLine: idx,
			})
			idx++
		}
		run.Reset()
		runStart = -1
	}

	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if runStart < 0 {
				runStart = runeIdx
			}
			run.WriteRune(r)
		} else {
			flush(runeIdx)
		}
		runeIdx++
	}
	flush(runeIdx)
	return tokens
}

// NormalizeWord lowercases a raw token and strips any leading or trailing
// runes that are neither letter nor digit. For tokens produced by
// TokenizeLine the trim is a no-op; it matters for raw query input.
func NormalizeWord(w string) string {
	w = strings.ToLower(w)
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
