// Package classifier maps raw courier status signals (machine codes and free-text
// labels from different integration generations) to one canonical category.
package classifier

import (
	"strings"
	"unicode"

	"github.com/BearBump/ShipSync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type Source string

const (
	SourceCode  Source = "code"
	SourceLabel Source = "label"
	SourceNone  Source = "none"
)

// Match describes which rule produced a category.
type Match struct {
	Category models.StatusCategory
	Source   Source
	Rule     string
}

// Classify is total: unrecognized or empty input yields UNKNOWN.
func Classify(raw models.RawStatus) models.StatusCategory {
	return Explain(raw).Category
}

func Explain(raw models.RawStatus) Match {
	if code := normalizeCode(raw.Code); code != "" {
		if c, ok := codeTable[code]; ok {
			return Match{Category: c, Source: SourceCode, Rule: code}
		}
	}

	tokens := Tokenize(raw.Label)
	if len(tokens) > 0 {
		for _, g := range keywordGroups {
			for _, phrase := range g.phrases {
				if containsPhrase(tokens, phrase) {
					return Match{Category: g.category, Source: SourceLabel, Rule: strings.Join(phrase, " ")}
				}
			}
		}
	}

	return Match{Category: models.StatusUnknown, Source: SourceNone}
}

// Tokenize lowercases, folds ё to е and splits on punctuation and whitespace.
func Tokenize(label string) []string {
	s := strings.TrimSpace(norm.NFKC.String(label))
	if s == "" {
		return nil
	}
	s = cases.Lower(language.Und).String(s)
	s = strings.ReplaceAll(s, "ё", "е")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Fields(s)
}

func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	code = strings.ToUpper(code)
	return strings.NewReplacer("-", "_", " ", "_").Replace(code)
}

// containsPhrase reports whether phrase occurs as a contiguous run of whole
// tokens that is not negated.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		if isNegator(phrase[0]) || !negated(tokens, i) {
			return true
		}
	}
	return false
}

// negated reports whether the token run starting at i is preceded by a negation.
func negated(tokens []string, i int) bool {
	if i >= 1 && isNegator(tokens[i-1]) {
		return true
	}
	if i >= 2 && isNegator(tokens[i-2]) {
		_, ok := fillers[tokens[i-1]]
		return ok
	}
	return false
}

func isNegator(tok string) bool {
	_, ok := negators[tok]
	return ok
}
