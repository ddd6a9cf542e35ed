package ha

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.MigrationLockEnabled {
		t.Error("expected migration lock enabled by default")
	}
	if cfg.LockName != DefaultLockName {
		t.Errorf("LockName = %q, want %q", cfg.LockName, DefaultLockName)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v, want 30s", cfg.LockTimeout)
	}
	if cfg.Identity == "" {
		t.Error("expected non-empty identity")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EDITION_MIGRATION_LOCK_ENABLED", "false")
	t.Setenv("EDITION_MIGRATION_LOCK_NAME", "staging-migration")
	t.Setenv("EDITION_MIGRATION_LOCK_TIMEOUT", "5")
	t.Setenv("POD_NAME", "edition-0")

	cfg := ConfigFromEnv()
	if cfg.MigrationLockEnabled {
		t.Error("expected migration lock disabled")
	}
	if cfg.LockName != "staging-migration" {
		t.Errorf("LockName = %q", cfg.LockName)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.Identity != "edition-0" {
		t.Errorf("Identity = %q, want edition-0", cfg.Identity)
	}
}

func TestConfigFromEnv_InvalidTimeoutKeepsDefault(t *testing.T) {
	t.Setenv("EDITION_MIGRATION_LOCK_TIMEOUT", "-3")
	if got := ConfigFromEnv().LockTimeout; got != 30*time.Second {
		t.Errorf("LockTimeout = %v, want default", got)
	}
}
