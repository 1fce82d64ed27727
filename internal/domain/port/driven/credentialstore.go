package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by credential-bearing stores when
// COMMITREVIEW_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set COMMITREVIEW_SECRET_KEY")

// CredentialStore holds service credentials (model API keys, inbound webhook
// secrets) that override the environment at startup. Values are plaintext at
// this boundary.
type CredentialStore interface {
	// Set stores or replaces the credential for service/key.
	Set(ctx context.Context, service, key, plaintext string) error

	// Get returns ("", nil) if no credential exists for service/key.
	Get(ctx context.Context, service, key string) (string, error)

	// List returns all stored credentials, decrypted.
	List(ctx context.Context) ([]model.Credential, error)

	Delete(ctx context.Context, service, key string) error
}
