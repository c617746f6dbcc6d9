package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mjuhl/wortkiste/internal/timex"
)

func TestJsonConfigPath(t *testing.T) {
	assert.Equal(t, "a.json", jsonConfigPath([]string{"-c", "a.json"}))
	assert.Equal(t, "b.json", jsonConfigPath([]string{"-a", ":1", "-config", "b.json"}))
	assert.Empty(t, jsonConfigPath([]string{"-a", ":1"}))
	assert.Empty(t, jsonConfigPath([]string{"-c"}))
}

func TestApplyJson(t *testing.T) {
	c := &Config{}
	c.LoadDefaults()

	applyJson(c, &JsonConfig{
		Addr:               ":6060",
		R2Bucket:           "wk",
		AdminTokenValidity: timex.Duration(30 * time.Minute),
	})

	assert.Equal(t, ":6060", c.Addr)
	assert.Equal(t, "wk", c.R2Bucket)
	assert.Equal(t, 30*time.Minute, c.AdminTokenValidity)
	// untouched fields keep their defaults
	assert.Equal(t, "auto", c.R2Region)
	assert.Equal(t, "*", c.CORSOrigins)
}
