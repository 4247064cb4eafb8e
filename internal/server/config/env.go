package config

import "os"

// parseEnv overlays configuration from environment variables. Secrets are
// normally delivered this way in deployment; flags exist mostly for local
// development.
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("ADDRESS"); ok {
		config.EndpointAddr = v
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		config.SecretKey = v
	}
	if v, ok := os.LookupEnv("ENCRYPTION_KEY"); ok {
		config.EncryptionKey = v
	}
	if v, ok := os.LookupEnv("APP_ENV"); ok {
		config.Environment = v
	}
}
