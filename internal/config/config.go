package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	SMTP     SMTPConfig
	Secrets  SecretsConfig
	PhonePe  PhonePeConfig
	PayPal   PayPalConfig
	Cashfree CashfreeConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// MongoConfig holds the archive store configuration
type MongoConfig struct {
	URI      string
	Database string
}

// SMTPConfig holds the admin notification mailer configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AdminTo  string
}

// SecretsConfig selects where provider credentials are resolved from.
// Backend is "env" or "aws".
type SecretsConfig struct {
	Backend      string
	AWSRegion    string
	CacheTTLSecs int
}

// PhonePeConfig holds PhonePe gateway configuration. SaltKey is a secret
// reference resolved through the secret manager at startup.
type PhonePeConfig struct {
	BaseURL     string
	MerchantID  string
	SaltKeyRef  string
	SaltIndex   string
	RedirectURL string
	CallbackURL string
	Timeout     int
}

// PayPalConfig holds PayPal gateway configuration
type PayPalConfig struct {
	BaseURL         string
	ClientID        string
	ClientSecretRef string
	Currency        string
	ReturnURL       string
	CancelURL       string
	Timeout         int
}

// CashfreeConfig holds Cashfree gateway configuration
type CashfreeConfig struct {
	BaseURL         string
	APIVersion      string
	ClientID        string
	ClientSecretRef string
	ReturnURL       string
	NotifyURL       string
	Timeout         int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "checkout_aggregator"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "checkout_aggregator"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "payments@example.com"),
			AdminTo:  getEnv("ADMIN_EMAIL", ""),
		},
		Secrets: SecretsConfig{
			Backend:      getEnv("SECRETS_BACKEND", "env"),
			AWSRegion:    getEnv("AWS_REGION", "ap-south-1"),
			CacheTTLSecs: getEnvAsInt("SECRETS_CACHE_TTL", 300),
		},
		PhonePe: PhonePeConfig{
			BaseURL:     getEnv("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
			MerchantID:  getEnv("PHONEPE_MERCHANT_ID", ""),
			SaltKeyRef:  getEnv("PHONEPE_SALT_KEY_REF", "phonepe/salt-key"),
			SaltIndex:   getEnv("PHONEPE_SALT_INDEX", "1"),
			RedirectURL: getEnv("PHONEPE_REDIRECT_URL", ""),
			CallbackURL: getEnv("PHONEPE_CALLBACK_URL", ""),
			Timeout:     getEnvAsInt("PHONEPE_TIMEOUT", 30),
		},
		PayPal: PayPalConfig{
			BaseURL:         getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:        getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecretRef: getEnv("PAYPAL_CLIENT_SECRET_REF", "paypal/client-secret"),
			Currency:        getEnv("PAYPAL_CURRENCY", "USD"),
			ReturnURL:       getEnv("PAYPAL_RETURN_URL", ""),
			CancelURL:       getEnv("PAYPAL_CANCEL_URL", ""),
			Timeout:         getEnvAsInt("PAYPAL_TIMEOUT", 30),
		},
		Cashfree: CashfreeConfig{
			BaseURL:         getEnv("CASHFREE_BASE_URL", "https://sandbox.cashfree.com/pg"),
			APIVersion:      getEnv("CASHFREE_API_VERSION", "2022-09-01"),
			ClientID:        getEnv("CASHFREE_CLIENT_ID", ""),
			ClientSecretRef: getEnv("CASHFREE_CLIENT_SECRET_REF", "cashfree/client-secret"),
			ReturnURL:       getEnv("CASHFREE_RETURN_URL", ""),
			NotifyURL:       getEnv("CASHFREE_NOTIFY_URL", ""),
			Timeout:         getEnvAsInt("CASHFREE_TIMEOUT", 30),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.SMTP.AdminTo == "" {
		return nil, fmt.Errorf("ADMIN_EMAIL is required")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
