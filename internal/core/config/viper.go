package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"db-url":       "db.url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"catalogs":     "catalogs.path",
	"watch":        "catalogs.watch",
	"workers":      "engine.compile_workers",
	"drop-empty":   "engine.drop_empty_codes",
	"cost-ordered": "engine.cost_ordering",
}

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags named in flagKeys are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_batch_size", d.Server.MaxBatchSize)
	v.SetDefault("engine.compile_workers", d.Engine.CompileWorkers)
	v.SetDefault("engine.max_pattern_length", d.Engine.MaxPatternLength)
	v.SetDefault("engine.max_match_input", d.Engine.MaxMatchInput)
	v.SetDefault("engine.drop_empty_codes", d.Engine.DropEmptyCodes)
	v.SetDefault("engine.cost_ordering", d.Engine.CostOrdering)
	v.SetDefault("catalogs.path", d.Catalogs.Path)
	v.SetDefault("catalogs.watch", d.Catalogs.Watch)
	v.SetDefault("db.url", d.DB.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// RULESET_SERVER_PORT -> server.port
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBatchSize:   v.GetInt("server.max_batch_size"),
		},
		Engine: EngineConfig{
			CompileWorkers:   v.GetInt("engine.compile_workers"),
			MaxPatternLength: v.GetInt("engine.max_pattern_length"),
			MaxMatchInput:    v.GetInt("engine.max_match_input"),
			DropEmptyCodes:   v.GetBool("engine.drop_empty_codes"),
			CostOrdering:     v.GetBool("engine.cost_ordering"),
		},
		Catalogs: CatalogsConfig{
			Path:  v.GetString("catalogs.path"),
			Watch: v.GetBool("catalogs.watch"),
		},
		DB: DBConfig{
			URL: v.GetString("db.url"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks ranges and enumerations; errors name the offending key.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("server.max_batch_size must be positive, got %d", cfg.Server.MaxBatchSize)
	}
	if cfg.Engine.CompileWorkers <= 0 {
		return fmt.Errorf("engine.compile_workers must be positive, got %d", cfg.Engine.CompileWorkers)
	}
	if cfg.Engine.MaxPatternLength <= 0 {
		return fmt.Errorf("engine.max_pattern_length must be positive, got %d", cfg.Engine.MaxPatternLength)
	}
	if cfg.Engine.MaxMatchInput <= 0 {
		return fmt.Errorf("engine.max_match_input must be positive, got %d", cfg.Engine.MaxMatchInput)
	}
	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	if cfg.Catalogs.Watch && cfg.Catalogs.Path == "" {
		return fmt.Errorf("catalogs.watch requires catalogs.path")
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s_HMAC_SECRET environment variable)", EnvPrefix)
	}
	return nil
}
