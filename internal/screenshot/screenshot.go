// Package screenshot はスクリーンショットコラボレータとの境界インターフェースを定義する。
// 取得・アップロードの実体はこのエンジンのスコープ外。
package screenshot

import (
	"context"
	"log/slog"
)

// Service はスクリーンショットの取得・アップロードを行うコラボレータ。
type Service interface {
	// CaptureAndUpload は現在の描画内容を取得してアップロードする。
	CaptureAndUpload(ctx context.Context, deviceID string) error
	// CleanupOld は古いスクリーンショットを削除し、最新keepCount件のみを保持する。
	CleanupOld(ctx context.Context, deviceID string, keepCount int) error
}

// NoopService はスクリーンショット機構が接続されていない環境向けのService実装。
// 要求をログに記録するだけで何もしない。
type NoopService struct {
	logger *slog.Logger
}

// NewNoopService はNoopServiceの新しいインスタンスを生成する。
func NewNoopService(logger *slog.Logger) *NoopService {
	return &NoopService{logger: logger}
}

// CaptureAndUpload は要求をログに記録する。
func (s *NoopService) CaptureAndUpload(ctx context.Context, deviceID string) error {
	s.logger.Info("スクリーンショット取得が要求されましたが、取得機構が未接続です",
		slog.String("device_id", deviceID),
	)
	return nil
}

// CleanupOld は要求をログに記録する。
func (s *NoopService) CleanupOld(ctx context.Context, deviceID string, keepCount int) error {
	s.logger.Info("スクリーンショット整理が要求されましたが、取得機構が未接続です",
		slog.String("device_id", deviceID),
		slog.Int("keep_count", keepCount),
	)
	return nil
}
