package chunk

import (
	"unicode"
	"unicode/utf8"
)

// CharsPerToken is the fixed ratio used by CharRatioCounter.
const CharsPerToken = 4

// TokenCounter measures text in tokens.
//
// Implementations must be subadditive over whitespace boundaries:
// Count(a+b) <= Count(a)+Count(b) when a ends in whitespace. The chunker
// sums per-unit counts to enforce budgets and relies on this to keep the
// real count of a joined chunk within the sum.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function, such as an external tokenizer, to TokenCounter.
type TokenCounterFunc func(text string) int

// Count implements TokenCounter.
func (f TokenCounterFunc) Count(text string) int { return f(text) }

// CharRatioCounter approximates tokens as ceil(runes / CharsPerToken).
type CharRatioCounter struct{}

// Count implements TokenCounter.
func (CharRatioCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// WordCounter counts each run of letters and digits as one token and each
// other non-space rune as one token. Whitespace is free.
type WordCounter struct{}

// Count implements TokenCounter.
func (WordCounter) Count(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if !inWord {
				count++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		default:
			count++
			inWord = false
		}
	}
	return count
}
