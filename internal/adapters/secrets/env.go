package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// EnvSecretManager resolves secrets from environment variables. Development
// only; deployed environments use the AWS adapter.
type EnvSecretManager struct{}

// NewEnvSecretManager creates an environment-variable backed secret manager
func NewEnvSecretManager() *EnvSecretManager {
	return &EnvSecretManager{}
}

// GetSecret maps a secret name like "phonepe/salt-key" to the environment
// variable PHONEPE_SALT_KEY
func (m *EnvSecretManager) GetSecret(_ context.Context, name string) (string, error) {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("/", "_", "-", "_").Replace(key)

	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("secret not set: %s (env %s)", name, key)
	}
	return value, nil
}

var _ ports.SecretManager = (*EnvSecretManager)(nil)
