package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points Load at a missing .env file so the developer's local file
// does not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CLINIC_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if cfg.StorageDriver != StoragePostgres {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
	if cfg.RemindersSchedule != "0 * * * *" || cfg.RemindersTemplateName != "Reminder" {
		t.Fatalf("reminders = %q / %q", cfg.RemindersSchedule, cfg.RemindersTemplateName)
	}
	if cfg.RemindersTimezone != time.UTC {
		t.Fatalf("RemindersTimezone = %v", cfg.RemindersTimezone)
	}
	if cfg.SlotStepMinutes != 5 {
		t.Fatalf("SlotStepMinutes = %d", cfg.SlotStepMinutes)
	}
	if cfg.DirectoryCacheTTL != 10*time.Minute {
		t.Fatalf("DirectoryCacheTTL = %v", cfg.DirectoryCacheTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CLINIC_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("CLINIC_STORAGE_DRIVER", "Memory")
	t.Setenv("CLINIC_REMINDERS_TIMEZONE", "Asia/Tokyo")
	t.Setenv("CLINIC_SLOTS_STEP_MINUTES", "15")
	t.Setenv("DATABASE_URL", "postgres://x@db/clinic")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if cfg.StorageDriver != StorageMemory {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
	if cfg.RemindersTimezone.String() != "Asia/Tokyo" {
		t.Fatalf("RemindersTimezone = %v", cfg.RemindersTimezone)
	}
	if cfg.SlotStepMinutes != 15 {
		t.Fatalf("SlotStepMinutes = %d", cfg.SlotStepMinutes)
	}
	if cfg.DatabaseURL != "postgres://x@db/clinic" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CLINIC_LOG_LEVEL=debug\nCLINIC_MAIL_MODE=log\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CLINIC_ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("CLINIC_LOG_LEVEL")
		os.Unsetenv("CLINIC_MAIL_MODE")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"duration", map[string]string{"CLINIC_SHUTDOWN_TIMEOUT": "soon"}, "shutdown.timeout"},
		{"timezone", map[string]string{"CLINIC_REMINDERS_TIMEZONE": "Mars/Base"}, "reminders.timezone"},
		{"driver", map[string]string{"CLINIC_STORAGE_DRIVER": "sqlite"}, "storage.driver"},
		{"live directory without url", map[string]string{"CLINIC_DIRECTORY_MODE": "live"}, "directory.base_url"},
		{"smtp without addr", map[string]string{"CLINIC_MAIL_MODE": "smtp"}, "mail.smtp_addr"},
		{"step", map[string]string{"CLINIC_SLOTS_STEP_MINUTES": "0"}, "slots.step_minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
