package ports

import "context"

// SecretManager resolves provider credentials (salt keys, client secrets) at
// startup. Implementations: AWS Secrets Manager for deployed environments,
// environment variables for local development.
type SecretManager interface {
	GetSecret(ctx context.Context, name string) (string, error)
}
