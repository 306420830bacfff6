package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cli struct {
	t      *testing.T
	config string
}

func setupCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("LATCH_BACKEND", "sqlite")
	t.Setenv("LATCH_SQLITE_PATH", filepath.Join(dir, "credentials.db"))
	t.Setenv("LATCH_INSTALLATION_ID", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	return &cli{t: t, config: filepath.Join(dir, "config.yaml")}
}

// run executes the root command with stdin as input and returns stdout.
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	serviceFlag, backendFlag, noUpdate, forceUnlock, complexFlag = "", "", false, false, false

	var out bytes.Buffer
	rootCmd.SetArgs(append([]string{"--config", c.config}, args...))
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCredentialCommands(t *testing.T) {
	c := setupCLI(t)

	if _, err := c.run("", "credential", "set", "alice", "s3cr3t", "--service", "svcA"); err != nil {
		t.Fatalf("set: %v", err)
	}

	out, err := c.run("", "credential", "get", "alice", "--service", "svcA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "s3cr3t\n" {
		t.Errorf("get printed %q", out)
	}

	if _, err := c.run("", "credential", "set", "alice", "other", "--service", "svcA", "--no-update"); err != nil {
		t.Fatalf("set --no-update: %v", err)
	}
	out, _ = c.run("", "credential", "get", "alice", "--service", "svcA")
	if out != "s3cr3t\n" {
		t.Errorf("--no-update should keep the stored value, got %q", out)
	}

	out, err = c.run("", "credential", "list", "--service", "svcA")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "alice") {
		t.Errorf("list output missing account: %q", out)
	}

	if _, err := c.run("", "credential", "delete", "alice", "--service", "svcA"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.run("", "credential", "get", "alice", "--service", "svcA"); err == nil {
		t.Error("expected get of deleted credential to fail")
	}
}

func TestPasscodeCommands(t *testing.T) {
	c := setupCLI(t)

	if _, err := c.run("1234\n1234\n", "passcode", "enable"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	out, err := c.run("", "passcode", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Passcode: on") || !strings.Contains(out, "simple (4 digits)") {
		t.Errorf("unexpected status %q", out)
	}

	out, err = c.run("0000\n1234\n", "unlock", "--force")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !strings.Contains(out, "Unlocked") {
		t.Errorf("unexpected unlock output %q", out)
	}

	data, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".latch", "audit.log"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, `"unlock_failure"`) || !strings.Contains(log, `"unlock_success"`) {
		t.Errorf("expected unlock outcomes in audit log, got %s", log)
	}

	if _, err := c.run("1234\n", "passcode", "off"); err != nil {
		t.Fatalf("off: %v", err)
	}
	out, _ = c.run("", "passcode", "status")
	if !strings.Contains(out, "Passcode: off") {
		t.Errorf("expected passcode off, got %q", out)
	}
}

func TestTimerAndBiometricsCommands(t *testing.T) {
	c := setupCLI(t)

	if _, err := c.run("", "timer", "duration", "5m"); err != nil {
		t.Fatalf("timer duration: %v", err)
	}
	out, err := c.run("", "timer", "duration")
	if err != nil {
		t.Fatalf("timer duration: %v", err)
	}
	if out != "5m0s\n" {
		t.Errorf("expected 5m0s, got %q", out)
	}

	c.run("", "timer", "start")
	out, _ = c.run("", "timer", "ended")
	if out != "false\n" {
		t.Errorf("expected timer running, got %q", out)
	}

	c.run("", "biometrics", "allow")
	out, _ = c.run("", "biometrics", "status")
	if out != "true\n" {
		t.Errorf("expected biometrics allowed, got %q", out)
	}
}

func TestInvalidBackend(t *testing.T) {
	c := setupCLI(t)
	if _, err := c.run("", "--backend", "vault", "credential", "list"); err == nil {
		t.Error("expected unknown backend to be rejected")
	}
}
