// Package config handles configuration for the server component,
// including defaults, .env and environment variables, an optional JSON
// overlay, and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the wortkiste server.
//
// Fields:
//   - Addr: bind address for the HTTP endpoint.
//   - R2AccountID: Cloudflare account ID, used to derive the endpoint.
//   - R2AccessKeyID / R2SecretAccessKey: S3 API credentials.
//   - R2Bucket: bucket name; also the first segment of every object key.
//   - R2Endpoint: explicit S3 endpoint, overrides the derived one.
//   - R2Region: S3 region; R2 expects "auto".
//   - GeminiAPIKey: key for story and sentence generation. Empty disables it.
//   - AdminSecret: shared secret for the admin login; signs admin JWTs.
//     Empty locks all admin routes.
//   - AdminTokenValidity: admin JWT lifetime.
//   - CORSOrigins: comma-separated list of allowed origins, "*" for any.
type Config struct {
	Addr               string
	R2AccountID        string
	R2AccessKeyID      string
	R2SecretAccessKey  string
	R2Bucket           string
	R2Endpoint         string
	R2Region           string
	GeminiAPIKey       string
	AdminSecret        string
	AdminTokenValidity time.Duration
	CORSOrigins        string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.R2Bucket = "wortkiste"
	c.R2Region = "auto"
	c.AdminTokenValidity = 24 * time.Hour
	c.CORSOrigins = "*"
}

// Endpoint returns the S3 endpoint to use: the explicit one when set,
// otherwise the account-scoped R2 endpoint.
func (c *Config) Endpoint() string {
	if c.R2Endpoint != "" {
		return c.R2Endpoint
	}
	if c.R2AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
	}
	return ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment (including a .env file), an optional JSON file and
// finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
