// Package pii implements the reversible PII obfuscation pipeline from
// spec.md §4.3: detect, placeholder-replace, and reverse.
package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
)

// anchorAutomaton matches the cheap literal substrings every pattern in
// DefaultPatterns requires (an "@" for email, or a digit for the
// phone/SSN/credit-card families). A miss against all of them means none
// of the regexes below can possibly match, so Obfuscate/ContainsPII skip
// straight to "no PII" without running four regexes over the text.
var anchorAutomaton = mustBuildAnchors()

func mustBuildAnchors() *ahocorasick.Automaton {
	anchors := []string{"@", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(anchors).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic(fmt.Sprintf("pii: failed to build anchor automaton: %v", err))
	}
	return ac
}

func hasAnyAnchor(text string) bool {
	return len(anchorAutomaton.FindAllOverlapping(text)) > 0
}

// Kind identifies a category of detected personal data.
type Kind string

const (
	Email      Kind = "EMAIL"
	Phone      Kind = "PHONE"
	SSN        Kind = "SSN"
	CreditCard Kind = "CREDIT_CARD"
)

// Token is an emitted placeholder mapping, in capture order.
type Token struct {
	Kind        Kind
	Index       int // 1-based per kind
	Placeholder string
	Original    string
}

// Pattern pairs a Kind with the compiled regexp used to detect it.
type Pattern struct {
	Kind Kind
	Re   *regexp.Regexp
}

// DefaultPatterns are the exact patterns pinned by spec.md §4.3. Order
// matters: it is also the order obfuscate() applies kinds in, and later
// kinds see placeholders substituted by earlier ones.
var DefaultPatterns = []Pattern{
	{Kind: Email, Re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{Kind: Phone, Re: regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)},
	{Kind: SSN, Re: regexp.MustCompile(`\b\d{3}[-.\s]?\d{2}[-.\s]?\d{4}\b`)},
	{Kind: CreditCard, Re: regexp.MustCompile(`\b(?:\d{4}[-.\s]?){3}\d{4}\b`)},
}

// Obfuscator detects and reversibly replaces PII in free text.
type Obfuscator struct {
	patterns []Pattern
}

// New builds an Obfuscator with the given ordered patterns. Pass
// DefaultPatterns to match the contract spec.md §4.3 pins.
func New(patterns []Pattern) *Obfuscator {
	return &Obfuscator{patterns: patterns}
}

// NewDefault builds an Obfuscator using DefaultPatterns.
func NewDefault() *Obfuscator {
	return New(DefaultPatterns)
}

// Result is the output of Obfuscate.
type Result struct {
	Text   string
	Tokens []Token
}

// Obfuscate replaces every PII match in text with a reversible placeholder.
// For each kind (in pattern order) it finds all non-overlapping matches in
// the running text, replaces them in reverse position order (so earlier
// match indices stay valid while later ones are rewritten), and emits one
// Token per match with a 1-based index scoped to that kind. The running
// text is mutated between kinds, so a later kind's pattern can match
// against an earlier kind's placeholders (it won't, in practice, since
// placeholders don't look like PII — but it sees the substituted text).
func (o *Obfuscator) Obfuscate(text string) Result {
	tokens := make([]Token, 0)
	if !hasAnyAnchor(text) {
		return Result{Text: text, Tokens: tokens}
	}
	counters := make(map[Kind]int)

	for _, p := range o.patterns {
		matches := p.Re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}

		kindTokens := make([]Token, len(matches))
		for i, m := range matches {
			counters[p.Kind]++
			idx := counters[p.Kind]
			original := text[m[0]:m[1]]
			placeholder := fmt.Sprintf("[%s_%d]", p.Kind, idx)
			kindTokens[i] = Token{
				Kind:        p.Kind,
				Index:       idx,
				Placeholder: placeholder,
				Original:    original,
			}
		}

		// Replace in reverse position order so earlier byte offsets remain
		// valid while later ones are rewritten in place.
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			text = text[:m[0]] + kindTokens[i].Placeholder + text[m[1]:]
		}

		tokens = append(tokens, kindTokens...)
	}

	return Result{Text: text, Tokens: tokens}
}

// Deobfuscate reverses Obfuscate's substitutions using the token table
// produced for this text, iterating tokens longest-placeholder-first (see
// SortTokensByPlaceholderLength) and replacing the first remaining
// occurrence of each placeholder with its original value. It is idempotent once no placeholders remain.
func (o *Obfuscator) Deobfuscate(text string, tokens []Token) string {
	for _, t := range SortTokensByPlaceholderLength(tokens) {
		text = strings.Replace(text, t.Placeholder, t.Original, 1)
	}
	return text
}

// ContainsPII reports whether any configured pattern matches text.
func (o *Obfuscator) ContainsPII(text string) bool {
	if !hasAnyAnchor(text) {
		return false
	}
	for _, p := range o.patterns {
		if p.Re.MatchString(text) {
			return true
		}
	}
	return false
}

// SortTokensByPlaceholderLength returns a copy of tokens ordered
// longest-placeholder-first; the sort is stable, so tokens whose
// placeholders have equal length keep their capture order.
func SortTokensByPlaceholderLength(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	copy(out, tokens)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Placeholder) > len(out[j].Placeholder)
	})
	return out
}
