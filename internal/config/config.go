// Package config loads chevron-bridge settings from defaults, an optional
// YAML file, CHEVRON_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
)

const (
	fileName  = "chevron-bridge"
	envPrefix = "chevron"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Bridge   BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	Keyring  KeyringConfig  `mapstructure:"keyring" yaml:"keyring"`
	GRPC     GRPCConfig     `mapstructure:"grpc" yaml:"grpc"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ProviderConfig struct {
	// Path is the directory searched for the provider library.
	Path string `mapstructure:"path" yaml:"path"`
	// Software installs the in-process provider instead of loading a library.
	Software bool `mapstructure:"software" yaml:"software"`
}

type BridgeConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
}

type KeyringConfig struct {
	// Path of the software provider's keyring file. Empty keeps keys in memory.
	Path     string `mapstructure:"path" yaml:"path"`
	SealCost int    `mapstructure:"seal_cost" yaml:"seal_cost"`
}

type GRPCConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"`
	AuthToken    string `mapstructure:"auth_token" yaml:"auth_token"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	TLSCert      string `mapstructure:"tls_cert" yaml:"tls_cert"`
	TLSKey       string `mapstructure:"tls_key" yaml:"tls_key"`
}

type AuditConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
	// DB is the SQLite database audit entries are stored in. Empty keeps
	// them in memory.
	DB     string `mapstructure:"db" yaml:"db"`
	Stdout bool   `mapstructure:"stdout" yaml:"stdout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the built-in settings keyed by their dotted names.
func Defaults() map[string]any {
	return map[string]any{
		"provider.path":       ".",
		"provider.software":   false,
		"bridge.max_workers":  0,
		"keyring.path":        "",
		"keyring.seal_cost":   crypto.DefaultCost,
		"grpc.addr":           ":50051",
		"grpc.auth_token":     "",
		"grpc.rate_limit_rps": 100,
		"grpc.tls_cert":       "",
		"grpc.tls_key":        "",
		"audit.buffer":        1024,
		"audit.db":            "",
		"audit.stdout":        false,
		"log.level":           "info",
		"log.format":          "json",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"provider":       "provider.path",
	"software":       "provider.software",
	"max-workers":    "bridge.max_workers",
	"keyring":        "keyring.path",
	"seal-cost":      "keyring.seal_cost",
	"addr":           "grpc.addr",
	"auth-token":     "grpc.auth_token",
	"rate-limit-rps": "grpc.rate_limit_rps",
	"tls-cert":       "grpc.tls_cert",
	"tls-key":        "grpc.tls_key",
	"audit-buffer":   "audit.buffer",
	"audit-db":       "audit.db",
	"audit-stdout":   "audit.stdout",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load builds the configuration. file, when not empty, names the config
// file to read and must exist; otherwise chevron-bridge.yaml is looked for
// in the user config directory and the working directory. cmd may be nil;
// when given, the flags it defines override every other source.
func Load(cmd *cobra.Command, file string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, fileName))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks values that cannot be caught by type conversion.
func (c Config) Validate() error {
	var errs []error
	if c.Bridge.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("bridge.max_workers must not be negative, got %d", c.Bridge.MaxWorkers))
	}
	if c.Keyring.SealCost < crypto.MinCost || c.Keyring.SealCost > crypto.MaxCost {
		errs = append(errs, fmt.Errorf("keyring.seal_cost must be in [%d, %d], got %d", crypto.MinCost, crypto.MaxCost, c.Keyring.SealCost))
	}
	if c.GRPC.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("grpc.rate_limit_rps must not be negative, got %d", c.GRPC.RateLimitRPS))
	}
	if (c.GRPC.TLSCert == "") != (c.GRPC.TLSKey == "") {
		errs = append(errs, errors.New("grpc.tls_cert and grpc.tls_key must be set together"))
	}
	if c.Audit.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("audit.buffer must be positive, got %d", c.Audit.Buffer))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if !c.Provider.Software && c.Provider.Path == "" {
		errs = append(errs, errors.New("provider.path is required unless provider.software is set"))
	}
	return errors.Join(errs...)
}

// YAML renders the configuration in the config file format.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
