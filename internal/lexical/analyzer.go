package lexical

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// TokenizerName is the registered name of the identifier-aware tokenizer.
	TokenizerName = "kbank_tokenizer"

	// AnalyzerName is the analyzer used for documents and queries.
	AnalyzerName = "kbank_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TokenizerName, tokenizerConstructor)
}

// wordPattern matches letter, digit and underscore runs.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Analyzer turns text into index terms: identifier-aware split, lowercase,
// English stop words removed, Porter stemmed.
type Analyzer struct {
	inner analysis.Analyzer
}

// NewAnalyzer builds the analyzer from the bleve registry.
func NewAnalyzer() (*Analyzer, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TokenizerName,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	a := m.AnalyzerNamed(AnalyzerName)
	if a == nil {
		return nil, fmt.Errorf("analyzer %s not registered", AnalyzerName)
	}
	return &Analyzer{inner: a}, nil
}

// Terms returns the analyzed terms of text in order, repeats included.
func (a *Analyzer) Terms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	stream := a.inner.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) > 0 {
			terms = append(terms, string(tok.Term))
		}
	}
	return terms
}

// TermFrequencies counts the analyzed terms of text.
func (a *Analyzer) TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, t := range a.Terms(text) {
		tf[t]++
	}
	return tf
}

func tokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &identTokenizer{}, nil
}

// identTokenizer implements analysis.Tokenizer. Words are split further on
// snake_case and camelCase boundaries; pieces shorter than two runes are
// dropped.
type identTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *identTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	var result analysis.TokenStream
	pos := 1

	for _, m := range wordPattern.FindAllStringIndex(text, -1) {
		for _, p := range splitIdentifier(text[m[0]:m[1]]) {
			if len([]rune(p.text)) < 2 {
				continue
			}
			result = append(result, &analysis.Token{
				Term:     []byte(p.text),
				Start:    m[0] + p.offset,
				End:      m[0] + p.offset + len(p.text),
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
		}
	}
	return result
}

type piece struct {
	text   string
	offset int
}

// splitIdentifier splits snake_case first, then camelCase within each part.
func splitIdentifier(word string) []piece {
	var out []piece
	offset := 0
	for _, part := range strings.Split(word, "_") {
		if part != "" {
			for _, p := range splitCamelCase(part) {
				out = append(out, piece{text: p.text, offset: offset + p.offset})
			}
		}
		offset += len(part) + 1
	}
	return out
}

// splitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func splitCamelCase(s string) []piece {
	var out []piece
	start := 0
	runes := []rune(s)
	byteAt := 0
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && byteAt > start {
				out = append(out, piece{text: s[start:byteAt], offset: start})
				start = byteAt
			}
		}
		byteAt += len(string(r))
	}
	if start < len(s) {
		out = append(out, piece{text: s[start:], offset: start})
	}
	return out
}
