// Package assistant lets a plant speak through a hosted language model.
package assistant

import (
	"context"
	"errors"

	"github.com/evkuzin/planthealth/storage"
)

var (
	ErrNoChoices = errors.New("completion returned no choices")
	ErrDisabled  = errors.New("assistant is disabled")
)

// Assistant writes texts in the voice of a plant. reading may be nil when
// the plant has no sensor data yet.
type Assistant interface {
	// Notification is a status update of up to 60 words.
	Notification(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error)
	// Summary is a one sentence mood of up to 12 words.
	Summary(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error)
	// Recommendation is a care tip for the household of up to 20 words.
	Recommendation(ctx context.Context, plant *storage.Plant, reading *storage.Reading) (string, error)
	// Chat answers input from user given the previous messages.
	Chat(ctx context.Context, plant *storage.Plant, reading *storage.Reading, history []string, user, input string) (string, error)
}
