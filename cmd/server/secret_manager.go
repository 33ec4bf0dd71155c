package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/checkout-aggregator/internal/adapters/secrets"
	"github.com/kevin07696/checkout-aggregator/internal/config"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// initSecretManager initializes the secret backend selected by config.
// Supports:
//   - AWS Secrets Manager (production): SECRETS_BACKEND=aws plus AWS_REGION
//   - Environment variables (development/testing): SECRETS_BACKEND=env
func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) ports.SecretManager {
	switch cfg.Backend {
	case "aws":
		sm, err := secrets.NewAWSSecretManager(ctx, secrets.AWSConfig{
			Region:   cfg.AWSRegion,
			CacheTTL: time.Duration(cfg.CacheTTLSecs) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to initialize AWS Secrets Manager",
				zap.Error(err),
				zap.String("region", cfg.AWSRegion),
			)
		}
		logger.Info("Using AWS Secrets Manager", zap.String("region", cfg.AWSRegion))
		return sm
	case "env":
		return secrets.NewEnvSecretManager()
	default:
		logger.Warn("Unknown SECRETS_BACKEND, falling back to environment variables",
			zap.String("backend", cfg.Backend),
		)
		return secrets.NewEnvSecretManager()
	}
}
