package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends accepted in the backend field.
const (
	BackendSystem  = "system"
	BackendKeyring = "keyring"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

// Config holds latch configuration loaded from ~/.latch/config.yaml.
type Config struct {
	Service        string   `yaml:"service"`
	Backend        string   `yaml:"backend"`
	SQLitePath     string   `yaml:"sqlite_path"`
	KeyringDir     string   `yaml:"keyring_dir"`
	InstallationID string   `yaml:"installation_id"`
	AuditLog       string   `yaml:"audit_log"`
	LogLevel       string   `yaml:"log_level"`
	Accounts       Accounts `yaml:"accounts"`
	Passcode       Passcode `yaml:"passcode"`

	// KeyringPassword unlocks the keyring backend's encrypted-file fallback.
	// It is only read from LATCH_KEYRING_PASSWORD.
	KeyringPassword string `yaml:"-"`
}

// Accounts names the records the passcode lock keeps.
type Accounts struct {
	Passcode        string `yaml:"passcode"`
	TimerStart      string `yaml:"timer_start"`
	TimerDuration   string `yaml:"timer_duration"`
	IsSimple        string `yaml:"is_simple"`
	AllowBiometrics string `yaml:"allow_biometrics"`
	FailedAttempts  string `yaml:"failed_attempts"`
}

// Passcode holds passcode policy.
type Passcode struct {
	Digits            int `yaml:"digits"`
	MaxFailedAttempts int `yaml:"max_failed_attempts"`
	AttemptsPerMinute int `yaml:"attempts_per_minute"`
}

// Home returns the latch home directory: ~/.latch.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".latch"
	}
	return filepath.Join(home, ".latch")
}

// DefaultPath returns the default config file path: ~/.latch/config.yaml.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Service:    "demoServiceName",
		Backend:    BackendSystem,
		SQLitePath: "~/.latch/credentials.db",
		KeyringDir: "~/.latch/keyring",
		AuditLog:   "~/.latch/audit.log",
		LogLevel:   "warn",
		Accounts: Accounts{
			Passcode:        "demoPasscode",
			TimerStart:      "demoPasscodeTimerStart",
			TimerDuration:   "passcodeTimerDuration",
			IsSimple:        "passcodeIsSimple",
			AllowBiometrics: "allowUnlockWithTouchID",
			FailedAttempts:  "passcodeFailedAttempts",
		},
		Passcode: Passcode{Digits: 4},
	}
}

// Load reads a YAML config file from path over the defaults. If the file does
// not exist, or is empty or all comments, the defaults are returned.
//
// A .env file next to the config, if present, is loaded into the environment
// first. LATCH_* variables then override file values.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.SQLitePath = expandHome(cfg.SQLitePath)
	cfg.KeyringDir = expandHome(cfg.KeyringDir)
	cfg.AuditLog = expandHome(cfg.AuditLog)
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		"LATCH_BACKEND":          &c.Backend,
		"LATCH_SERVICE":          &c.Service,
		"LATCH_INSTALLATION_ID":  &c.InstallationID,
		"LATCH_LOG_LEVEL":        &c.LogLevel,
		"LATCH_SQLITE_PATH":      &c.SQLitePath,
		"LATCH_KEYRING_PASSWORD": &c.KeyringPassword,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSystem, BackendKeyring, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Service == "" {
		return errors.New("service is required")
	}
	if c.Backend == BackendSQLite && c.SQLitePath == "" {
		return errors.New("sqlite_path is required for the sqlite backend")
	}
	if c.Passcode.Digits < 4 || c.Passcode.Digits > 10 {
		return fmt.Errorf("passcode.digits must be between 4 and 10, got %d", c.Passcode.Digits)
	}
	if c.Passcode.MaxFailedAttempts < 0 {
		return fmt.Errorf("passcode.max_failed_attempts must not be negative, got %d", c.Passcode.MaxFailedAttempts)
	}
	if c.Passcode.AttemptsPerMinute < 0 {
		return fmt.Errorf("passcode.attempts_per_minute must not be negative, got %d", c.Passcode.AttemptsPerMinute)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
