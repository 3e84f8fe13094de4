package deckchat

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultSuggestionCount      = 4
	DefaultSuggestionInputLimit = 12000
)

// QueryGenerator asks the language model for questions a reader might ask.
type QueryGenerator struct {
	model      LanguageModel
	timeout    time.Duration
	inputLimit int
}

func NewQueryGenerator(model LanguageModel, timeout time.Duration, inputLimit int) *QueryGenerator {
	if inputLimit <= 0 {
		inputLimit = DefaultSuggestionInputLimit
	}
	return &QueryGenerator{
		model:      model,
		timeout:    timeout,
		inputLimit: inputLimit,
	}
}

// Suggest returns at most count non-empty questions. Fewer lines from the
// model simply mean fewer questions.
func (g *QueryGenerator) Suggest(ctx context.Context, document string, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultSuggestionCount
	}
	if runes := []rune(document); len(runes) > g.inputLimit {
		document = string(runes[:g.inputLimit])
	}

	prompt, err := SuggestionPrompt(document, count)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	raw, err := g.model.Complete(callCtx, prompt)
	if err != nil {
		return nil, collaboratorError(callCtx, ErrModelUnavailable, "suggest questions", err)
	}

	return ParseSuggestions(raw, count), nil
}

// ParseSuggestions splits a model response into trimmed non-empty lines, keeping at most limit.
func ParseSuggestions(raw string, limit int) []string {
	questions := make([]string, 0, limit)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(questions) == limit {
			break
		}
		questions = append(questions, line)
	}
	return questions
}
