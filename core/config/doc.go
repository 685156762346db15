// Package config provides configuration management for the card inventory service.
//
// It utilizes Viper for loading configuration from environment variables,
// a .env file (via godotenv) and struct tag defaults.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, environment, body limit)
//   - Database: MySQL or SQLite connection details
//   - Storage: S3/MinIO credentials and the import staging bucket
//   - Log: Logging level and format
//   - Lock: in-process or Redis locks
//   - Worker: background job pool size
//   - Channels, Sync: provider credentials and push retry settings
//   - Reconcile, Ingest: scan schedule, auto-resolution and import limits
//
// Environment variables use the section as prefix, e.g. DATABASE_HOST or
// SYNC_MAX_ATTEMPTS.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
