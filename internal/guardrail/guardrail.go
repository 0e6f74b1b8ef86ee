// Package guardrail screens tutor queries and generated responses for
// content unsuitable in a learning context: prompt injection attempts in
// queries and unsafe material in either direction.
//
// No filter is perfect. Pattern matching catches common cases; the system
// prompt and response review remain the other layers of defense.
package guardrail

import (
	"regexp"
	"strings"
	"unicode"
)

// Verdict is the outcome of screening one piece of text.
type Verdict struct {
	Safe     bool
	Patterns []string // matched patterns, empty when safe
}

// Gate screens text entering and leaving a tutor session.
type Gate interface {
	// CheckQuery screens a learner's query before it reaches retrieval and
	// generation.
	CheckQuery(query string) Verdict

	// CheckResponse screens a generated response before it is recorded and
	// returned.
	CheckResponse(response string) Verdict
}

// PatternGate is a regexp-based Gate. Query screening covers prompt
// injection and unsafe topics; response screening covers unsafe topics only,
// since the model echoing an instruction-like phrase is not an attack.
type PatternGate struct {
	injection []*regexp.Regexp
	unsafe    []*regexp.Regexp
}

// NewPatternGate creates a PatternGate with the default pattern set.
func NewPatternGate() *PatternGate {
	injection := compileAll([]string{
		// System prompt override attempts
		`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`,
		`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
		`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`,
		`(?i)override\s+(all\s+)?(previous|above|prior)\s+(instructions?|rules?)`,

		// Role-playing attacks
		`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
		`(?i)^you\s+are\s+now\s+a`,
		`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

		// Instruction injection
		`(?i)^\s*(important|critical|urgent|system)\s*:\s*`,
		`(?i)^new\s+(instruction|task|rule)\s*:`,
		`(?i)^admin\s*(mode|override|command)\s*:`,

		// Delimiter manipulation
		`(?i)\]\s*\[\s*(system|assistant|instruction)`,
		`(?i)</?(system|instruction|prompt)>`,

		// Jailbreak attempts
		`(?i)do\s+anything\s+now`,
		`(?i)jailbreak`,
		`(?i)bypass\s+(safety|filter|restrictions?)`,
	})

	unsafe := compileAll([]string{
		`(?i)how\s+to\s+(make|build|create)\s+(a\s+)?(bomb|explosive|weapon)`,
		`(?i)(buy|sell|get)\s+(illegal\s+)?(drugs|narcotics)`,
		`(?i)(hurt|harm|kill)\s+(yourself|myself|themselves)`,
		`(?i)self[\s-]?harm`,
	})

	return &PatternGate{injection: injection, unsafe: unsafe}
}

// CheckQuery screens for injection and unsafe topics.
func (g *PatternGate) CheckQuery(query string) Verdict {
	normalized := normalize(query)
	detected := match(g.injection, normalized)
	detected = append(detected, match(g.unsafe, normalized)...)
	return Verdict{Safe: len(detected) == 0, Patterns: detected}
}

// CheckResponse screens for unsafe topics.
func (g *PatternGate) CheckResponse(response string) Verdict {
	detected := match(g.unsafe, normalize(response))
	return Verdict{Safe: len(detected) == 0, Patterns: detected}
}

// NopGate passes everything. For tests and trusted pipelines.
type NopGate struct{}

func (NopGate) CheckQuery(string) Verdict    { return Verdict{Safe: true} }
func (NopGate) CheckResponse(string) Verdict { return Verdict{Safe: true} }

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

func match(patterns []*regexp.Regexp, text string) []string {
	var detected []string
	for _, re := range patterns {
		if re.MatchString(text) {
			detected = append(detected, re.String())
		}
	}
	return detected
}

// normalize strips zero-width characters and collapses whitespace so
// spacing tricks cannot evade the patterns.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
