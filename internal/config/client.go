package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

type ClientConfig struct {
	ServerURL string   `mapstructure:"server_url"`
	Room      string   `mapstructure:"room"`
	Name      string   `mapstructure:"name"`
	STUNURLs  []string `mapstructure:"stun_urls"`
	Input     string   `mapstructure:"input"`
	RecordDir string   `mapstructure:"record_dir"`
	LogLevel  string   `mapstructure:"log_level"`
}

// LoadClient layers flags over env over the config file over defaults.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("room", "1")
	v.SetDefault("name", "")
	v.SetDefault("input", "")
	v.SetDefault("record_dir", "")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("log_level", "info")

	readFile(v)

	if flags != nil {
		var bindErr error
		// Flags are kebab-case, config keys snake_case.
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.Room == "" {
		return nil, fmt.Errorf("room must not be empty")
	}
	return &cfg, nil
}
