package deckchat

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

const (
	suggestionPromptTmpl = `Generate {{.count}} different questions that a reader could ask about the presentation below.
Read the whole content before writing the questions. The questions should invite the reader to explore the deck.

Response rules:
1. Put each question on its own line.
2. Do not add comments, instructions or headings.
3. Do not number the questions and do not use bullet points or other special characters.
4. Keep every question short, specific and relevant to the content.

Presentation content:
{{.document}}
`

	answerPromptTmpl = `You are an assistant specialized in analyzing slide presentations. Help the user understand and extract information from their presentation in a conversational way.

Use the presentation content below to give a clear and concise answer to the user's question. If the information is not available in the content, say so instead of making assumptions.

Context from the presentation:
{{.context}}

Answer only from the provided context and do not fabricate information.

User's question: {{.question}}

Response: `
)

var (
	suggestionPrompt = prompts.NewPromptTemplate(suggestionPromptTmpl, []string{"count", "document"})
	answerPrompt     = prompts.NewPromptTemplate(answerPromptTmpl, []string{"context", "question"})
)

// SuggestionPrompt renders the request for count suggested questions.
func SuggestionPrompt(document string, count int) (string, error) {
	p, err := suggestionPrompt.Format(map[string]any{
		"count":    count,
		"document": document,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render suggestion prompt: %w", err)
	}
	return p, nil
}

// AnswerPrompt renders the grounding prompt for question over the retrieved matches.
func AnswerPrompt(question string, matches []Match) (string, error) {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	p, err := answerPrompt.Format(map[string]any{
		"context":  strings.Join(texts, "\n\n"),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	return p, nil
}
