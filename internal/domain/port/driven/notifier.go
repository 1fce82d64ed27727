package driven

import (
	"context"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// ReviewNotification is everything a notifier needs to render a review message.
type ReviewNotification struct {
	RepositoryName string
	Record         model.CodeReviewRecord

	// Excerpt is the review text to quote; the notifier bounds its length.
	Excerpt string
	Link    string
}

// Notifier delivers review notifications to an external chat endpoint.
// Delivery failures are logged and reported as false, never returned.
type Notifier interface {
	Notify(ctx context.Context, endpoint, secret string, n ReviewNotification) bool
}
