package driven

import "context"

// Reviewer is a reasoning model that answers a single system/user exchange.
type Reviewer interface {
	Complete(ctx context.Context, system, user string) (string, error)

	// Model returns the model name recorded against each review.
	Model() string
}
