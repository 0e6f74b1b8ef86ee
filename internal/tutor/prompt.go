package tutor

import (
	"fmt"
	"strings"

	"github.com/rgknow/edurag/internal/knowledge"
)

const (
	roleHeader     = "### Role"
	contextHeader  = "### Context"
	historyHeader  = "### Conversation"
	questionHeader = "### Question"
)

// personalityInstructions maps each personality to its tone guidance.
var personalityInstructions = map[Personality]string{
	PersonalityEncouraging:  "Be warm and supportive. Praise effort, normalize mistakes, and build the learner's confidence step by step.",
	PersonalityChallenging:  "Push the learner to think harder. Ask probing questions, raise the difficulty gradually, and do not accept vague answers.",
	PersonalityPatient:      "Take it slow. Break ideas into small steps, repeat where needed, and never rush the learner past confusion.",
	PersonalityEnthusiastic: "Bring energy. Use vivid analogies and everyday examples, and share what makes the topic exciting.",
}

// sessionTypeInstructions maps each session type to its framing.
var sessionTypeInstructions = map[SessionType]string{
	TypeStudy:      "The learner is studying new material. Introduce ideas in order and check understanding as you go.",
	TypePractice:   "The learner is practicing. Offer problems, let them attempt each step, and correct gently.",
	TypeAssessment: "The learner is testing themselves. Be focused, probe recall, and point out common mistakes.",
	TypeHelp:       "The learner is stuck on something specific. Help them understand how to solve it; never just hand over final answers.",
}

// buildPrompt assembles the full generation prompt: tutoring role and tone,
// retrieved course material, the recent conversation, and the question.
// Responses must ground themselves in the context section when it is
// present.
func buildPrompt(s Session, history []Interaction, query string, hits []knowledge.SearchHit) string {
	var b strings.Builder

	b.WriteString(roleHeader + "\n")
	b.WriteString("You are a tutor for ")
	if s.Scope.Subject != "" {
		fmt.Fprintf(&b, "%s, ", s.Scope.Subject)
	}
	if s.Scope.Grade != "" {
		fmt.Fprintf(&b, "grade %s ", s.Scope.Grade)
	}
	b.WriteString("students.\n")
	b.WriteString(personalityInstructions[s.Personality] + "\n")
	b.WriteString(sessionTypeInstructions[s.Type] + "\n")
	b.WriteString("Base your answer on the context below. If the context does not cover the question, say so and reason carefully instead of inventing facts.\n")

	if len(hits) > 0 {
		b.WriteString("\n" + contextHeader + "\n")
		for i, hit := range hits {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(hit.Chunk.Content))
		}
	}

	if len(history) > 0 {
		b.WriteString("\n" + historyHeader + "\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Student: %s\nTutor: %s\n", turn.Query, turn.Response)
		}
	}

	b.WriteString("\n" + questionHeader + "\n")
	b.WriteString(strings.TrimSpace(query) + "\n")
	return b.String()
}
