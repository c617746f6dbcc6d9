package config

import (
	"flag"
	"os"
)

// parseFlags populates selected server Config fields from command-line
// flags.
//
// Supported flags:
//
//	-a string        HTTP bind address (e.g., ":8080")
//	-b string        bucket name
//	-e string        S3 endpoint (overrides the account-derived one)
//	-secret string   admin login secret
//	-t duration      admin token validity (e.g., "24h")
//	-c string        path to a JSON config file (read by parseJson)
func parseFlags(config *Config) {
	parseFlagSet(config, os.Args[1:])
}

func parseFlagSet(config *Config, args []string) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.R2Bucket, "b", config.R2Bucket, "bucket name")
	fs.StringVar(&config.R2Endpoint, "e", config.R2Endpoint, "S3 endpoint")
	fs.StringVar(&config.AdminSecret, "secret", config.AdminSecret, "admin login secret")
	validity := fs.Duration("t", config.AdminTokenValidity, "admin token validity")

	// consumed by parseJson before flag parsing
	var configFile string
	fs.StringVar(&configFile, "c", "", "path to JSON config file")
	fs.StringVar(&configFile, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AdminTokenValidity = *validity
}
