package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	c := &Config{}
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "wortkiste", c.R2Bucket)
	assert.Equal(t, "auto", c.R2Region)
	assert.Equal(t, 24*time.Hour, c.AdminTokenValidity)
	assert.Equal(t, "*", c.CORSOrigins)
	assert.Empty(t, c.GeminiAPIKey)
	assert.Empty(t, c.AdminSecret)
}

func TestEndpoint(t *testing.T) {
	c := &Config{}
	assert.Empty(t, c.Endpoint())

	c.R2AccountID = "abc123"
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com", c.Endpoint())

	c.R2Endpoint = "http://127.0.0.1:9000"
	assert.Equal(t, "http://127.0.0.1:9000", c.Endpoint())
}

func TestParseEnv(t *testing.T) {
	t.Setenv("ADDRESS", ":9090")
	t.Setenv("R2_ACCOUNT_ID", "acc")
	t.Setenv("R2_BUCKET", "wk")
	t.Setenv("ADMIN_TOKEN_VALIDITY", "1h")
	t.Setenv("GEMINI_API_KEY", "")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, ":9090", c.Addr)
	assert.Equal(t, "acc", c.R2AccountID)
	assert.Equal(t, "wk", c.R2Bucket)
	assert.Equal(t, time.Hour, c.AdminTokenValidity)
	// empty variables keep the current value
	assert.Empty(t, c.GeminiAPIKey)
	assert.Equal(t, "auto", c.R2Region)
}
