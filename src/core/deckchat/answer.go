package deckchat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deckrag/src/log"
)

const DefaultTopK = 6

// RetrievalAnswerer answers a question from the chunks of the asking user's
// index, streaming the model output.
type RetrievalAnswerer struct {
	store         IndexStore
	embedder      Embedder
	model         LanguageModel
	topK          int
	embedTimeout  time.Duration
	streamTimeout time.Duration
}

func NewRetrievalAnswerer(store IndexStore, embedder Embedder, model LanguageModel, topK int, embedTimeout, streamTimeout time.Duration) *RetrievalAnswerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RetrievalAnswerer{
		store:         store,
		embedder:      embedder,
		model:         model,
		topK:          topK,
		embedTimeout:  embedTimeout,
		streamTimeout: streamTimeout,
	}
}

// Answer starts answering in the background. The channel is closed when the
// answer is complete, after a single error fragment, or once ctx is done.
// Cancelling ctx stops the model call; nothing is sent afterwards.
func (a *RetrievalAnswerer) Answer(ctx context.Context, userID, question string) <-chan Fragment {
	out := make(chan Fragment)
	go func() {
		defer close(out)
		a.run(ctx, userID, question, out)
	}()
	return out
}

func (a *RetrievalAnswerer) run(ctx context.Context, userID, question string, out chan<- Fragment) {
	send := func(f Fragment) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		log.Error(err, "answer failed", "user_id", userID)
		send(Fragment{Text: errorText(userID, err), Err: err})
	}

	ix, err := a.store.Load(ctx, userID)
	if err != nil {
		fail(err)
		return
	}

	qv, err := embedOne(ctx, a.embedder, question, a.embedTimeout)
	if err != nil {
		fail(err)
		return
	}

	matches, err := ix.Query(qv, a.topK)
	if err != nil {
		fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
		return
	}
	log.Debug("retrieved context", "user_id", userID, "matches", len(matches))

	prompt, err := AnswerPrompt(question, matches)
	if err != nil {
		fail(err)
		return
	}

	streamCtx, cancel := withTimeout(ctx, a.streamTimeout)
	defer cancel()
	err = a.model.Stream(streamCtx, prompt, func(token string) error {
		if token == "" {
			return nil
		}
		if !send(Fragment{Text: token}) {
			return ctx.Err()
		}
		return nil
	})
	if ctx.Err() != nil {
		log.Info("answer stream abandoned by caller", "user_id", userID)
		return
	}
	if err != nil {
		fail(collaboratorError(streamCtx, ErrModelUnavailable, "stream answer", err))
	}
}

func errorText(userID string, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Error: No document has been embedded for user %s. Please upload and embed a document first.", userID)
	case errors.Is(err, ErrCorrupt):
		return "Error: Unable to load the vector store. Please try embedding the document again."
	default:
		return "Error: " + err.Error()
	}
}
