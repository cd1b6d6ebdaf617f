package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"timebox/core/execution"
)

// Config drives the timebox CLI and batch runner.
type Config struct {
	// Timeout is the default wall-clock budget per invocation.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// ReapTimeout bounds how long a killed worker may take to be reaped.
	ReapTimeout time.Duration      `mapstructure:"reap_timeout" validate:"gt=0"`
	Worker      WorkerConfig       `mapstructure:"worker"`
	Log         LogConfig          `mapstructure:"log"`
	Invocations []InvocationConfig `mapstructure:"invocations" validate:"dive"`
}

type WorkerConfig struct {
	Executable string   `mapstructure:"executable"`
	Env        []string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// InvocationConfig is one batch entry. A zero Timeout uses Config.Timeout.
type InvocationConfig struct {
	Target  string         `mapstructure:"target"  validate:"required"`
	Args    []any          `mapstructure:"args"`
	Kwargs  map[string]any `mapstructure:"kwargs"`
	Timeout time.Duration  `mapstructure:"timeout" validate:"gte=0"`
}

// Defaults returns a 600s budget per call and info-level text logging.
func Defaults() Config {
	return Config{
		Timeout:     600 * time.Second,
		ReapTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	for _, kv := range c.Worker.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("worker env entry %q is not KEY=VALUE", kv)
		}
	}
	return nil
}

// Load reads path (YAML) over the defaults. TIMEBOX_* environment variables
// override file values, e.g. TIMEBOX_LOG_LEVEL=debug. An empty path looks for
// timebox.yaml in the working directory and tolerates its absence.
func Load(path string) (Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("timebox")
		vip.AddConfigPath(".")
	}
	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("timebox")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := Defaults()
	vip.SetDefault("timeout", def.Timeout)
	vip.SetDefault("reap_timeout", def.ReapTimeout)
	vip.SetDefault("worker.executable", "")
	vip.SetDefault("log.level", def.Log.Level)
	vip.SetDefault("log.format", def.Log.Format)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BatchInvocations turns the configured batch into engine invocations.
func (c Config) BatchInvocations() []execution.Invocation {
	out := make([]execution.Invocation, 0, len(c.Invocations))
	for _, ic := range c.Invocations {
		timeout := ic.Timeout
		if timeout == 0 {
			timeout = c.Timeout
		}
		out = append(out, execution.NewInvocation(ic.Target, timeout, ic.Args, ic.Kwargs))
	}
	return out
}
