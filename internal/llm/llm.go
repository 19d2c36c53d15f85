// Package llm abstracts the generative backend behind small interfaces so
// the turn executor can be tested against an in-memory fake. The only real
// implementation talks to the Gemini API.
package llm

import (
	"context"
	"errors"
)

// ErrBackendUnavailable wraps any transport or API failure from the
// generative backend. Callers treat a turn that hits this as never having
// happened.
var ErrBackendUnavailable = errors.New("generative backend unavailable")

// ChatSession is one rolling conversation with the backend. The backend
// keeps the history; callers only send the next message.
type ChatSession interface {
	// Send submits one message and returns the model's full text response.
	Send(ctx context.Context, message string) (string, error)
}

// Client creates chat sessions and one-shot generations.
type Client interface {
	// StartChat opens a session seeded with a system instruction and an
	// optional prior transcript (alternating user/model turns).
	StartChat(ctx context.Context, systemInstruction string, history []Turn) (ChatSession, error)

	// Generate runs a single stateless prompt, used for debrief reports.
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// Turn is one prior exchange entry used to rebuild a session's history.
type Turn struct {
	FromModel bool
	Text      string
}
