package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const configName = "contract-gate"

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, contract-gate.yaml/.yml is searched in
// the standard locations. The search requires an explicit YAML extension so
// the contract-gate binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then reports ConfigFileNotFoundError.
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	// CONTRACT_GATE_SERVER_HTTP_ADDR overrides server.http_addr.
	viper.SetEnvPrefix("CONTRACT_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".contract-gate"),
		"/etc/contract-gate",
	})
}

// findConfigFileInPaths returns the first contract-gate.yaml or .yml in
// paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every scalar key so nested values can be set
// from the environment. Lists (guards, enforced_patterns) belong in the
// config file.
func bindNestedEnvKeys() {
	for _, key := range []string{
		"connector.id",
		"connector.title",
		"server.http_addr",
		"server.log_level",
		"usage_control.allow_unsupported_patterns",
		"storage.driver",
		"storage.sqlite_path",
		"storage.busy_timeout",
		"audit.output",
		"audit.retention_days",
		"audit.max_file_size_mb",
		"notification.timeout",
		"sweep.enabled",
		"sweep.schedule",
		"sweep.expiry_enabled",
		"tracing.enabled",
		"catalog.seed_file",
		"dev_mode",
	} {
		_ = viper.BindEnv(key)
	}
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// neither dev defaults nor validation. Use it when CLI flags may still
// change DevMode.
func LoadConfigRaw() (*GateConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: environment only.
	}

	var cfg GateConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// LoadConfig reads, defaults and validates the configuration.
func LoadConfig() (*GateConfig, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running from the environment only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
