package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// DefaultGenerateTimeout bounds a single model call.
const DefaultGenerateTimeout = 30 * time.Second

// Generator produces a tutoring response from a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenkitGenerator calls an LLM through Genkit, with a per-call timeout and
// optional proactive rate limiting.
type GenkitGenerator struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
	limiter *rate.Limiter // nil = unlimited
}

// NewGenkitGenerator wraps a Genkit instance. model is a full model name,
// e.g. "googleai/gemini-2.5-flash"; limiter may be nil.
func NewGenkitGenerator(g *genkit.Genkit, model string, limiter *rate.Limiter) *GenkitGenerator {
	return &GenkitGenerator{
		g:       g,
		model:   model,
		timeout: DefaultGenerateTimeout,
		limiter: limiter,
	}
}

// Generate runs one model call.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gg.timeout)
	defer cancel()

	if gg.limiter != nil {
		if err := gg.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithPrompt(prompt),
		ai.WithModelName(gg.model),
	)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model returned empty response")
	}
	return text, nil
}

// TemplateGenerator produces deterministic responses without a model. It is
// the offline provider: responses restate the question and walk through the
// retrieved context, so the pipeline stays exercisable end to end.
type TemplateGenerator struct{}

// Generate assembles a response from the prompt's question and context
// sections.
func (TemplateGenerator) Generate(_ context.Context, prompt string) (string, error) {
	question := section(prompt, questionHeader)
	contextText := section(prompt, contextHeader)

	var b strings.Builder
	if question != "" {
		fmt.Fprintf(&b, "Good question. You asked: %s\n\n", question)
	}
	if contextText != "" {
		b.WriteString("Here is what your course material says:\n")
		b.WriteString(firstSentences(contextText, 3))
		b.WriteString("\n\n")
		b.WriteString("Try putting that in your own words. What part feels unclear?")
	} else {
		b.WriteString("I could not find course material covering this, so let's reason it out together. ")
		b.WriteString("What do you already know about the topic?")
	}
	return b.String(), nil
}

// section extracts the text between header and the next header line.
func section(prompt, header string) string {
	_, after, found := strings.Cut(prompt, header)
	if !found {
		return ""
	}
	if next := strings.Index(after, "\n### "); next >= 0 {
		after = after[:next]
	}
	return strings.TrimSpace(after)
}

// firstSentences returns up to n sentences of text.
func firstSentences(text string, n int) string {
	var b strings.Builder
	count := 0
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= n {
				break
			}
		}
	}
	return strings.TrimSpace(b.String())
}
