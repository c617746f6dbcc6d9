package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mjuhl/wortkiste/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	Addr               string         `json:"address"`
	R2AccountID        string         `json:"r2_account_id"`
	R2AccessKeyID      string         `json:"r2_access_key_id"`
	R2SecretAccessKey  string         `json:"r2_secret_access_key"`
	R2Bucket           string         `json:"r2_bucket"`
	R2Endpoint         string         `json:"r2_endpoint"`
	R2Region           string         `json:"r2_region"`
	GeminiAPIKey       string         `json:"gemini_api_key"`
	AdminSecret        string         `json:"admin_secret"`
	AdminTokenValidity timex.Duration `json:"admin_token_validity"`
	CORSOrigins        string         `json:"cors_origins"`
}

// jsonConfigPath returns the value of the -c/-config flag, scanning the
// raw arguments so the lookup works before the main flag set is parsed.
func jsonConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "-config", "--c", "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return ""
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flag; without
// it no JSON file is loaded. Only fields present in the file override the
// current values. An unreadable or invalid file panics.
func parseJson(config *Config) {
	path := jsonConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
	if c.Addr != "" {
		config.Addr = c.Addr
	}
	if c.R2AccountID != "" {
		config.R2AccountID = c.R2AccountID
	}
	if c.R2AccessKeyID != "" {
		config.R2AccessKeyID = c.R2AccessKeyID
	}
	if c.R2SecretAccessKey != "" {
		config.R2SecretAccessKey = c.R2SecretAccessKey
	}
	if c.R2Bucket != "" {
		config.R2Bucket = c.R2Bucket
	}
	if c.R2Endpoint != "" {
		config.R2Endpoint = c.R2Endpoint
	}
	if c.R2Region != "" {
		config.R2Region = c.R2Region
	}
	if c.GeminiAPIKey != "" {
		config.GeminiAPIKey = c.GeminiAPIKey
	}
	if c.AdminSecret != "" {
		config.AdminSecret = c.AdminSecret
	}
	if c.AdminTokenValidity != 0 {
		config.AdminTokenValidity = time.Duration(c.AdminTokenValidity)
	}
	if c.CORSOrigins != "" {
		config.CORSOrigins = c.CORSOrigins
	}
}
