package domain

import "context"

// Notifier is the entry point the CRUD layer calls after a write commits.
// Both methods are fire-and-forget.
type Notifier interface {
	NotifyMatchCreated(ctx context.Context, match Match)
	NotifyCommentary(ctx context.Context, commentary Commentary)
}
