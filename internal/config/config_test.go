package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `service: com.example.app
backend: sqlite
sqlite_path: /tmp/latch.db
installation_id: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
log_level: debug
accounts:
  passcode: appPasscode
passcode:
  digits: 6
  max_failed_attempts: 5
  attempts_per_minute: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service != "com.example.app" {
		t.Errorf("Service = %q, want %q", cfg.Service, "com.example.app")
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSQLite)
	}
	if cfg.SQLitePath != "/tmp/latch.db" {
		t.Errorf("SQLitePath = %q, want %q", cfg.SQLitePath, "/tmp/latch.db")
	}
	if cfg.Accounts.Passcode != "appPasscode" {
		t.Errorf("Accounts.Passcode = %q, want %q", cfg.Accounts.Passcode, "appPasscode")
	}
	if cfg.Accounts.TimerStart != "demoPasscodeTimerStart" {
		t.Errorf("Accounts.TimerStart = %q, want default", cfg.Accounts.TimerStart)
	}
	if cfg.Passcode.Digits != 6 || cfg.Passcode.MaxFailedAttempts != 5 || cfg.Passcode.AttemptsPerMinute != 10 {
		t.Errorf("Passcode = %+v", cfg.Passcode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	want := Default()
	if cfg.Service != want.Service {
		t.Errorf("Service = %q, want %q", cfg.Service, want.Service)
	}
	if cfg.Backend != BackendSystem {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSystem)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Accounts != Default().Accounts {
		t.Errorf("Accounts = %+v, want defaults", cfg.Accounts)
	}
}

func TestLoadCommentsOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, `# service: other
# backend: keyring
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service != "demoServiceName" {
		t.Errorf("Service = %q, want default", cfg.Service)
	}
	if cfg.Backend != BackendSystem {
		t.Errorf("Backend = %q, want default", cfg.Backend)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "service: [unclosed\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg, err := Load(writeConfig(t, "audit_log: ~/logs/audit.log\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AuditLog != filepath.Join(home, "logs", "audit.log") {
		t.Errorf("AuditLog = %q", cfg.AuditLog)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LATCH_BACKEND", "memory")
	t.Setenv("LATCH_SERVICE", "from-env")
	t.Setenv("LATCH_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, "service: from-file\nbackend: keyring\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.Service != "from-env" {
		t.Errorf("Service = %q, want from-env", cfg.Service)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
}

func TestDotEnvFile(t *testing.T) {
	unsetEnv(t, "LATCH_INSTALLATION_ID")
	unsetEnv(t, "LATCH_SERVICE")

	path := writeConfig(t, "service: from-file\n")
	env := "LATCH_INSTALLATION_ID=6BA7B810-9DAD-11D1-80B4-00C04FD430C8\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InstallationID != "6BA7B810-9DAD-11D1-80B4-00C04FD430C8" {
		t.Errorf("InstallationID = %q", cfg.InstallationID)
	}
	if cfg.Service != "from-file" {
		t.Errorf("Service = %q, want from-file", cfg.Service)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "vault" }, "unknown backend"},
		{"empty service", func(c *Config) { c.Service = "" }, "service"},
		{"too few digits", func(c *Config) { c.Passcode.Digits = 3 }, "digits"},
		{"too many digits", func(c *Config) { c.Passcode.Digits = 11 }, "digits"},
		{"negative attempts", func(c *Config) { c.Passcode.MaxFailedAttempts = -1 }, "max_failed_attempts"},
		{"negative rate", func(c *Config) { c.Passcode.AttemptsPerMinute = -1 }, "attempts_per_minute"},
		{"sqlite without path", func(c *Config) { c.Backend = BackendSQLite; c.SQLitePath = "" }, "sqlite_path"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errSub == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}
