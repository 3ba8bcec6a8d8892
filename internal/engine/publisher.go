package engine

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// LogPublisher stands in for a real publisher in dry-run mode: posts are
// logged and never sent.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the post and always succeeds.
func (p LogPublisher) Publish(_ context.Context, post domain.Post) error {
	p.Logger.Info("dry run, notification not posted", "kind", post.Kind, "text", post.Text)
	return nil
}
