package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	strutil "auditpipe/pkg/platform/strings"
)

const (
	// EnvPrefix marks environment variables read as configuration.
	EnvPrefix = "AUDITPIPE_"

	// PathEnvVar overrides the config file location.
	PathEnvVar = EnvPrefix + "CONFIG"

	defaultPath = "config.yaml"
)

// sliceKeys are parsed from comma-separated strings when set via env.
var sliceKeys = []string{
	"kafka.brokers",
	"server.cors_allowed_origins",
}

// Load layers defaults, an optional YAML file and AUDITPIPE_ environment
// variables, in that order, then validates the result.
//
// Environment keys nest with a double underscore:
// AUDITPIPE_AUDIT__QUEUE_CAPACITY sets audit.queue_capacity.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := configPath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSlices(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	return ""
}

// envKey maps AUDITPIPE_RETENTION__SWEEP_INTERVAL to retention.sweep_interval.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func splitSlices(k *koanf.Koanf) error {
	for _, path := range sliceKeys {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strutil.SplitList(raw)
		if parts == nil {
			parts = []string{}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
