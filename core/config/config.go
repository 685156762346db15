package config

import (
	"fmt"
	"reflect"
	"strings"

	"card-inventory/core/database"
	"card-inventory/core/lock"
	"card-inventory/core/logger"
	"card-inventory/core/server"
	"card-inventory/core/storage"
	"card-inventory/core/worker"
	"card-inventory/feature/channels"
	"card-inventory/feature/ingest"
	"card-inventory/feature/reconciliation"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Lock selects per-key locking (in-process or redis).
	Lock lock.Config `mapstructure:"lock"`
	// Worker sizes the background pool.
	Worker worker.Config `mapstructure:"worker"`
	// Channels holds credentials and provider settings of channel integrations.
	Channels channels.Config `mapstructure:"channels"`
	// Sync holds quantity push and retry settings.
	Sync channels.SyncConfig `mapstructure:"sync"`
	// Reconcile holds mismatch scan settings.
	Reconcile reconciliation.Config `mapstructure:"reconcile"`
	// Ingest holds file import limits.
	Ingest ingest.Config `mapstructure:"ingest"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SYNC_MAX_ATTEMPTS -> sync.max_attempts)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if !c.Server.IsValidEnvironment() {
		return fmt.Errorf("unknown environment %q", c.Server.Environment)
	}
	switch c.Database.Driver {
	case database.DriverMySQL, database.DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Lock.Driver {
	case lock.DriverMemory, lock.DriverRedis:
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	switch c.Reconcile.AutoResolve {
	case reconciliation.PolicyManual, reconciliation.PolicyPushInternal, reconciliation.PolicyPullChannel:
	default:
		return fmt.Errorf("unknown auto resolve policy %q", c.Reconcile.AutoResolve)
	}
	if c.Server.IsProduction() && c.Channels.EncryptionKey == "" {
		return fmt.Errorf("channels.encryption_key is required in production")
	}
	return nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
