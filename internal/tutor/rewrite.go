package tutor

import (
	"strings"
	"unicode"
)

// anaphora are words that refer back to something said earlier. A query
// using them needs conversation context to retrieve well.
var anaphora = map[string]bool{
	"it": true, "that": true, "this": true, "those": true, "these": true,
	"they": true, "them": true, "he": true, "she": true, "its": true,
	"one": true, "again": true, "more": true,
}

// shortQueryWords is the length under which a query is assumed to lean on
// conversation context ("why?", "how does it work").
const shortQueryWords = 4

// rewriteQuery makes a follow-up query retrievable on its own by appending
// the topic of the previous turn. Standalone queries pass through unchanged.
// The rewrite is a pure function of its inputs and never fails; it affects
// retrieval only, the learner's original wording is what gets answered.
func rewriteQuery(query string, history []Interaction) string {
	if len(history) == 0 {
		return query
	}

	words := tokenizeWords(query)
	needsContext := len(words) < shortQueryWords
	if !needsContext {
		for _, w := range words {
			if anaphora[w] {
				needsContext = true
				break
			}
		}
	}
	if !needsContext {
		return query
	}

	prev := history[len(history)-1]
	topic := prev.RewrittenQuery
	if topic == "" {
		topic = prev.Query
	}
	if strings.TrimSpace(topic) == "" {
		return query
	}
	return strings.TrimSpace(query) + " (regarding: " + strings.TrimSpace(topic) + ")"
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
