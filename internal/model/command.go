package model

import "time"

// CommandType はオペレータが発行するリモートコマンドの種別を表す。
type CommandType string

const (
	// CommandRestart はプレイヤープロセスの再起動要求。
	CommandRestart CommandType = "restart"
	// CommandScreenshot はスクリーンショットの即時取得要求。
	CommandScreenshot CommandType = "screenshot"
	// CommandClearCache はローカルキャッシュ（コンテンツ・メディア）のクリア要求。
	CommandClearCache CommandType = "clear_cache"
	// CommandRefreshContent はコンテンツの即時再取得要求。
	CommandRefreshContent CommandType = "refresh_content"
)

// DeviceCommand はこのデバイス宛ての保留中コマンド。
type DeviceCommand struct {
	ID        string      `json:"id"`
	Type      CommandType `json:"type"`
	Payload   string      `json:"payload,omitempty"`
	IssuedAt  time.Time   `json:"issued_at"`
}

// CommandResult はコマンド実行結果のコントロールプレーンへの報告。
type CommandResult struct {
	CommandID  string    `json:"command_id"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// HeartbeatDirectives はハートビート応答に含まれるサーバー指示。
type HeartbeatDirectives struct {
	// NeedsScreenshotUpdate はスクリーンショットの取得・アップロードが必要なことを示す。
	NeedsScreenshotUpdate bool `json:"needs_screenshot_update"`
}
