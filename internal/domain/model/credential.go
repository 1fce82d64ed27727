package model

import "time"

// Credential is a stored secret for an external service. Service names the
// system ("llm", "github") and Key the secret within it ("api_key",
// "webhook_secret").
type Credential struct {
	ID        int64
	Service   string
	Key       string
	Value     string
	UpdatedAt time.Time
}
