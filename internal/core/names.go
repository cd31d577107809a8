package core

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizationRule maps a value to the form used to compare two spellings.
type NormalizationRule func(string) string

// CosmeticRule ignores whitespace and letter case.
func CosmeticRule(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// IsSemanticChange reports whether corrected differs from original once both
// have been put through the same normalization rule. Whitespace and case
// cleanup is cosmetic; anything left over is a real change worth logging.
// A nil rule means CosmeticRule.
func IsSemanticChange(original, corrected string, rule NormalizationRule) bool {
	if rule == nil {
		rule = CosmeticRule
	}
	return rule(original) != rule(corrected)
}

var wordRegex = regexp.MustCompile(`\S+`)

// NormalizeWorkerName applies the profile's name policy in order: dictionary
// substitution of whole words, whitespace trimming and collapsing, then case.
func (p *Profile) NormalizeWorkerName(raw string) string {
	wn := p.WorkerNames
	s := substituteWords(raw, p.index().substitutes)

	if wn.CollapseSpaces {
		s = strings.Join(strings.Fields(s), " ")
	} else if wn.TrimSpaces {
		s = strings.TrimSpace(s)
	}

	switch wn.Case {
	case CaseUpper:
		s = cases.Upper(language.Spanish).String(s)
	case CaseLower:
		s = cases.Lower(language.Spanish).String(s)
	case CaseTitle:
		s = cases.Title(language.Spanish).String(s)
	}
	return s
}

// CanonicalWorkerKey is the identity used to merge worker statistics.
func CanonicalWorkerKey(name string) string {
	return CosmeticRule(name)
}

// substituteWords replaces dictionary entries that match whole words. Keys
// may span several words; longer keys are tried first. Spacing outside the
// replaced words is preserved.
func substituteWords(s string, subs []substitution) string {
	if len(subs) == 0 {
		return s
	}
	spans := wordRegex.FindAllStringIndex(s, -1)
	if len(spans) == 0 {
		return s
	}
	words := make([]string, len(spans))
	for i, sp := range spans {
		words[i] = strings.ToUpper(s[sp[0]:sp[1]])
	}

	var b strings.Builder
	last := 0
	for i := 0; i < len(words); {
		sub, ok := matchAt(words, i, subs)
		if !ok {
			i++
			continue
		}
		start, end := spans[i][0], spans[i+len(sub.from)-1][1]
		b.WriteString(s[last:start])
		b.WriteString(sub.to)
		last = end
		i += len(sub.from)
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func matchAt(words []string, i int, subs []substitution) (substitution, bool) {
	for _, sub := range subs {
		if i+len(sub.from) > len(words) {
			continue
		}
		match := true
		for j, w := range sub.from {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return sub, true
		}
	}
	return substitution{}, false
}
