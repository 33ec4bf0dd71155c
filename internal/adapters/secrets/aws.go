package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// AWSConfig contains configuration for the AWS Secrets Manager adapter
type AWSConfig struct {
	Region string
	// Optional AWS profile name for local development
	Profile string
	// Cache TTL for resolved secrets
	CacheTTL time.Duration
}

// AWSSecretManager implements ports.SecretManager on AWS Secrets Manager,
// with a small in-memory cache so provider adapters can resolve credentials
// per call without hammering the API.
type AWSSecretManager struct {
	client *secretsmanager.Client
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewAWSSecretManager creates a new AWS Secrets Manager adapter
func NewAWSSecretManager(ctx context.Context, cfg AWSConfig) (*AWSSecretManager, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretManager{
		client: secretsmanager.NewFromConfig(awsCfg),
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// GetSecret resolves a secret value by name
func (m *AWSSecretManager) GetSecret(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	if entry, ok := m.cache[name]; ok && time.Now().Before(entry.expiresAt) {
		m.mu.Unlock()
		return entry.value, nil
	}
	m.mu.Unlock()

	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	m.mu.Lock()
	m.cache[name] = cacheEntry{value: *out.SecretString, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	return *out.SecretString, nil
}

var _ ports.SecretManager = (*AWSSecretManager)(nil)
