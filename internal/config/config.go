// Package config はアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Control plane
	ControlPlaneURL string
	DeviceID        string
	PlayerVersion   string

	// Intervals
	SyncInterval       time.Duration
	HeartbeatInterval  time.Duration
	CommandInterval    time.Duration
	EventDrainInterval time.Duration
	JanitorInterval    time.Duration

	// HTTP
	HTTPTimeout time.Duration

	// Cache
	CacheDir           string
	CacheRetentionDays int

	// Media
	MediaMaxSize         int64
	MediaDownloadsPerSec float64

	// Screenshot
	ScreenshotKeep int

	// Admin server
	AdminPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.ControlPlaneURL = os.Getenv("CONTROL_PLANE_URL")
	if cfg.ControlPlaneURL == "" {
		missing = append(missing, "CONTROL_PLANE_URL")
	}

	cfg.DeviceID = os.Getenv("DEVICE_ID")
	if cfg.DeviceID == "" {
		missing = append(missing, "DEVICE_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PlayerVersion = getEnvString("PLAYER_VERSION", "dev")
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 30*time.Second)
	cfg.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second)
	cfg.CommandInterval = getEnvDuration("COMMAND_INTERVAL", 10*time.Second)
	cfg.EventDrainInterval = getEnvDuration("EVENT_DRAIN_INTERVAL", 1*time.Minute)
	cfg.JanitorInterval = getEnvDuration("JANITOR_INTERVAL", 24*time.Hour)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.CacheDir = getEnvString("CACHE_DIR", "/var/lib/kioskd")
	cfg.CacheRetentionDays = getEnvInt("CACHE_RETENTION_DAYS", 30)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 52428800)
	cfg.MediaDownloadsPerSec = getEnvFloat("MEDIA_DOWNLOADS_PER_SEC", 4)
	cfg.ScreenshotKeep = getEnvInt("SCREENSHOT_KEEP", 5)
	cfg.AdminPort = getEnvString("ADMIN_PORT", "8990")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
