package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sosinternet/internal/policy"
)

// Environment variables consulted after the YAML file is applied.
const (
	EnvRouterPassword = "SOSINTERNET_ROUTER_PASSWORD"
	EnvEncryptionKey  = "SOSINTERNET_ENCRYPTION_KEY"
)

// Config represents configuration data for the watchdog service.
type Config struct {
	Connection ConnectionSettings `yaml:"connection"`
	Router     RouterSettings     `yaml:"router"`
	Log        LogSettings        `yaml:"log"`
	Server     ServerSettings     `yaml:"server"`
}

// ConnectionSettings controls how often connectivity is checked and when to escalate.
type ConnectionSettings struct {
	CheckIntervalSeconds  int      `yaml:"check_interval_seconds" validate:"min=1"`
	RetriesBeforeReboot   int      `yaml:"retries_before_reboot" validate:"min=1"`
	PostRebootWaitSeconds int      `yaml:"post_reboot_wait_seconds" validate:"min=0"`
	ProbeTimeoutSeconds   int      `yaml:"probe_timeout_seconds" validate:"min=1,max=60"`
	ProbeMethod           string   `yaml:"probe_method" validate:"oneof=icmp tcp dns"`
	ProbeTargets          []string `yaml:"probe_targets" validate:"min=1,dive,required"`
}

// RouterSettings describes how to reach the router administration interface.
type RouterSettings struct {
	Driver         string `yaml:"driver" validate:"oneof=tplink ssh"`
	URL            string `yaml:"url" validate:"omitempty,url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	UseEncryption  bool   `yaml:"use_encryption"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=1"`
	Headless       bool   `yaml:"headless"`
	SSHAddress     string `yaml:"ssh_address" validate:"omitempty,hostname_port"`
	SSHCommand     string `yaml:"ssh_command"`
	SSHHostKey     string `yaml:"ssh_host_key"`
}

// LogSettings mirrors the log path and retention knobs of the service.
type LogSettings struct {
	Level         string `yaml:"level" validate:"oneof=debug info warn error"`
	Format        string `yaml:"format" validate:"oneof=console json"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days" validate:"min=0"`
}

// ServerSettings configures the status API.
type ServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Connection: ConnectionSettings{
			CheckIntervalSeconds:  15,
			RetriesBeforeReboot:   4,
			PostRebootWaitSeconds: 120,
			ProbeTimeoutSeconds:   3,
			ProbeMethod:           "icmp",
			ProbeTargets:          []string{"8.8.8.8", "1.1.1.1", "google.com"},
		},
		Router: RouterSettings{
			Driver:         "tplink",
			URL:            "http://192.168.1.1",
			TimeoutSeconds: 60,
			Headless:       true,
			SSHCommand:     "reboot",
		},
		Log: LogSettings{
			Level:         "info",
			Format:        "console",
			Path:          "logs",
			RetentionDays: 30,
		},
		Server: ServerSettings{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, &Error{Field: "(file)", Reason: "parse config", Err: err}
			}
		}
	}

	cfg.applyEnv()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if pw := os.Getenv(EnvRouterPassword); pw != "" {
		c.Router.Password = pw
	}
}

func (c *Config) normalise() {
	c.Connection.ProbeMethod = strings.ToLower(strings.TrimSpace(c.Connection.ProbeMethod))
	targets := c.Connection.ProbeTargets[:0]
	for _, t := range c.Connection.ProbeTargets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	c.Connection.ProbeTargets = targets
	c.Router.Driver = strings.ToLower(strings.TrimSpace(c.Router.Driver))
	c.Router.URL = strings.TrimSpace(c.Router.URL)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Router.SSHCommand == "" {
		c.Router.SSHCommand = "reboot"
	}
}

var validate = newValidator()

// newValidator reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every section against its invariants.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fromValidation(err)
	}
	return nil
}

// RequireRouter checks that the settings needed to reboot the router are present.
func (c Config) RequireRouter() error {
	if c.Router.Password == "" {
		return &Error{Field: "router.password", Reason: "is required to reboot the router"}
	}
	switch c.Router.Driver {
	case "tplink":
		if c.Router.URL == "" {
			return &Error{Field: "router.url", Reason: "is required for the tplink driver"}
		}
	case "ssh":
		if c.Router.SSHAddress == "" {
			return &Error{Field: "router.ssh_address", Reason: "is required for the ssh driver"}
		}
	}
	return nil
}

// Policy converts the connection section into recovery policy settings.
func (s ConnectionSettings) Policy() policy.Settings {
	return policy.Settings{
		CheckInterval:       time.Duration(s.CheckIntervalSeconds) * time.Second,
		RetriesBeforeReboot: s.RetriesBeforeReboot,
		PostRebootWait:      time.Duration(s.PostRebootWaitSeconds) * time.Second,
	}
}

// ProbeTimeout returns the per-target probe deadline.
func (s ConnectionSettings) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSeconds) * time.Second
}

// Timeout returns the overall deadline for a single reboot attempt.
func (r RouterSettings) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}
