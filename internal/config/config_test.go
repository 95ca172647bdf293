package config

import (
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("CONTROL_PLANE_URL", "https://control.example.com")
	t.Setenv("DEVICE_ID", "kiosk-042")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ControlPlaneURL != "https://control.example.com" {
		t.Errorf("ControlPlaneURL = %q, want %q", cfg.ControlPlaneURL, "https://control.example.com")
	}
	if cfg.DeviceID != "kiosk-042" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "kiosk-042")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Interval defaults
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want %v", cfg.SyncInterval, 30*time.Second)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want %v", cfg.HeartbeatInterval, 30*time.Second)
	}
	if cfg.CommandInterval != 10*time.Second {
		t.Errorf("CommandInterval = %v, want %v", cfg.CommandInterval, 10*time.Second)
	}
	if cfg.EventDrainInterval != 1*time.Minute {
		t.Errorf("EventDrainInterval = %v, want %v", cfg.EventDrainInterval, 1*time.Minute)
	}
	if cfg.JanitorInterval != 24*time.Hour {
		t.Errorf("JanitorInterval = %v, want %v", cfg.JanitorInterval, 24*time.Hour)
	}

	// HTTP defaults
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want %v", cfg.HTTPTimeout, 10*time.Second)
	}

	// Cache defaults
	if cfg.CacheDir != "/var/lib/kioskd" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, "/var/lib/kioskd")
	}
	if cfg.CacheRetentionDays != 30 {
		t.Errorf("CacheRetentionDays = %d, want %d", cfg.CacheRetentionDays, 30)
	}

	// Media defaults
	if cfg.MediaMaxSize != 52428800 {
		t.Errorf("MediaMaxSize = %d, want %d", cfg.MediaMaxSize, 52428800)
	}
	if cfg.MediaDownloadsPerSec != 4 {
		t.Errorf("MediaDownloadsPerSec = %v, want %v", cfg.MediaDownloadsPerSec, 4.0)
	}

	// Screenshot defaults
	if cfg.ScreenshotKeep != 5 {
		t.Errorf("ScreenshotKeep = %d, want %d", cfg.ScreenshotKeep, 5)
	}

	// Server defaults
	if cfg.AdminPort != "8990" {
		t.Errorf("AdminPort = %q, want %q", cfg.AdminPort, "8990")
	}
	if cfg.PlayerVersion != "dev" {
		t.Errorf("PlayerVersion = %q, want %q", cfg.PlayerVersion, "dev")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("PLAYER_VERSION", "2.3.1")
	t.Setenv("SYNC_INTERVAL", "15s")
	t.Setenv("HEARTBEAT_INTERVAL", "1m")
	t.Setenv("COMMAND_INTERVAL", "5s")
	t.Setenv("EVENT_DRAIN_INTERVAL", "30s")
	t.Setenv("JANITOR_INTERVAL", "12h")
	t.Setenv("HTTP_TIMEOUT", "30s")
	t.Setenv("CACHE_DIR", "/tmp/kioskd-test")
	t.Setenv("CACHE_RETENTION_DAYS", "7")
	t.Setenv("MEDIA_MAX_SIZE", "10485760")
	t.Setenv("MEDIA_DOWNLOADS_PER_SEC", "2.5")
	t.Setenv("SCREENSHOT_KEEP", "10")
	t.Setenv("ADMIN_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.PlayerVersion != "2.3.1" {
		t.Errorf("PlayerVersion = %q, want %q", cfg.PlayerVersion, "2.3.1")
	}
	if cfg.SyncInterval != 15*time.Second {
		t.Errorf("SyncInterval = %v, want %v", cfg.SyncInterval, 15*time.Second)
	}
	if cfg.HeartbeatInterval != 1*time.Minute {
		t.Errorf("HeartbeatInterval = %v, want %v", cfg.HeartbeatInterval, 1*time.Minute)
	}
	if cfg.CommandInterval != 5*time.Second {
		t.Errorf("CommandInterval = %v, want %v", cfg.CommandInterval, 5*time.Second)
	}
	if cfg.EventDrainInterval != 30*time.Second {
		t.Errorf("EventDrainInterval = %v, want %v", cfg.EventDrainInterval, 30*time.Second)
	}
	if cfg.JanitorInterval != 12*time.Hour {
		t.Errorf("JanitorInterval = %v, want %v", cfg.JanitorInterval, 12*time.Hour)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want %v", cfg.HTTPTimeout, 30*time.Second)
	}
	if cfg.CacheDir != "/tmp/kioskd-test" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, "/tmp/kioskd-test")
	}
	if cfg.CacheRetentionDays != 7 {
		t.Errorf("CacheRetentionDays = %d, want %d", cfg.CacheRetentionDays, 7)
	}
	if cfg.MediaMaxSize != 10485760 {
		t.Errorf("MediaMaxSize = %d, want %d", cfg.MediaMaxSize, 10485760)
	}
	if cfg.MediaDownloadsPerSec != 2.5 {
		t.Errorf("MediaDownloadsPerSec = %v, want %v", cfg.MediaDownloadsPerSec, 2.5)
	}
	if cfg.ScreenshotKeep != 10 {
		t.Errorf("ScreenshotKeep = %d, want %d", cfg.ScreenshotKeep, 10)
	}
	if cfg.AdminPort != "9000" {
		t.Errorf("AdminPort = %q, want %q", cfg.AdminPort, "9000")
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("SYNC_INTERVAL", "not-a-duration")
	t.Setenv("CACHE_RETENTION_DAYS", "abc")
	t.Setenv("MEDIA_MAX_SIZE", "huge")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want %v", cfg.SyncInterval, 30*time.Second)
	}
	if cfg.CacheRetentionDays != 30 {
		t.Errorf("CacheRetentionDays = %d, want %d", cfg.CacheRetentionDays, 30)
	}
	if cfg.MediaMaxSize != 52428800 {
		t.Errorf("MediaMaxSize = %d, want %d", cfg.MediaMaxSize, 52428800)
	}
}

func TestLoad_MissingControlPlaneURL_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("CONTROL_PLANE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing CONTROL_PLANE_URL, got nil")
	}
}

func TestLoad_MissingDeviceID_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DEVICE_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DEVICE_ID, got nil")
	}
}

func TestLoad_AllMissing_ReportsAllVars(t *testing.T) {
	t.Setenv("CONTROL_PLANE_URL", "")
	t.Setenv("DEVICE_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required vars, got nil")
	}
}
