package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv populates Config fields from environment variables, loading a
// .env file first if one exists. A variable that is unset or empty leaves
// the current value in place.
func parseEnv(config *Config) {
	// missing .env is fine; real deployments set variables directly
	_ = godotenv.Load()

	setString := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setString(&config.Addr, "ADDRESS")
	setString(&config.R2AccountID, "R2_ACCOUNT_ID")
	setString(&config.R2AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&config.R2SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setString(&config.R2Bucket, "R2_BUCKET")
	setString(&config.R2Endpoint, "R2_ENDPOINT")
	setString(&config.R2Region, "R2_REGION")
	setString(&config.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&config.AdminSecret, "ADMIN_SECRET")
	setString(&config.CORSOrigins, "CORS_ORIGINS")

	if v := os.Getenv("ADMIN_TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.AdminTokenValidity = d
		}
	}
}
