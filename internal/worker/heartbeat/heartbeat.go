// Package heartbeat はデバイスヘルスの定期報告を提供する。
// 固定周期でデバイス情報を送信し、サーバー指示（スクリーンショット要求、
// リフレッシュフラグ）を処理する。
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/kioskd/internal/identity"
	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/screenshot"
)

// HeartbeatClient はハートビート関連のコントロールプレーン呼び出しのインターフェース。
type HeartbeatClient interface {
	SendHeartbeat(ctx context.Context, deviceID, playerVersion, fingerprint string) (*model.HeartbeatDirectives, error)
	CheckRefreshFlag(ctx context.Context, deviceID string) (bool, error)
	ClearRefreshFlag(ctx context.Context, deviceID, newFingerprint string) error
}

// ContentRefresher は同期ポーラーの即時再実行インターフェース。
type ContentRefresher interface {
	// ForceRefresh は通常周期の外で即時に同期を実行し、実行後のフィンガープリントを返す。
	ForceRefresh(ctx context.Context) (string, error)
}

// Reporter はハートビートレポーター。
// 接続状態にかかわらず周期で無条件に実行を継続する。ハートビート失敗は
// コンテンツ取得失敗より弱いシグナルであるため、接続状態マシンには一切影響しない。
type Reporter struct {
	client        HeartbeatClient
	shots         screenshot.Service
	identity      identity.Store
	refresher     ContentRefresher
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	deviceID      string
	playerVersion string
	keepCount     int
}

// NewReporter はReporterの新しいインスタンスを生成する。
// keepCountが0以下の場合はデフォルト値5を使用する。
func NewReporter(
	client HeartbeatClient,
	shots screenshot.Service,
	identityStore identity.Store,
	refresher ContentRefresher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	deviceID, playerVersion string,
	keepCount int,
) *Reporter {
	if keepCount <= 0 {
		keepCount = 5
	}
	return &Reporter{
		client:        client,
		shots:         shots,
		identity:      identityStore,
		refresher:     refresher,
		metrics:       collector,
		logger:        logger,
		deviceID:      deviceID,
		playerVersion: playerVersion,
		keepCount:     keepCount,
	}
}

// Start はハートビートループを起動する。起動直後に1回実行し、
// 以降はintervalごとに実行する。コンテキストがキャンセルされるまで継続する。
// 個々のハートビート失敗はログに記録して次の周期へ進む。
func (r *Reporter) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ハートビートレポーターを開始しました",
		slog.Duration("interval", interval),
		slog.String("device_id", r.deviceID),
	)

	// 起動直後に1回実行（1周期分遅延させない）
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ハートビートレポーターを停止しました")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce はハートビートサイクルを1回実行する。
// 失敗してもエラーを返さずログに記録する（ハートビートは無条件に継続する）。
func (r *Reporter) RunOnce(ctx context.Context) {
	fingerprint, err := r.identity.LastFingerprint(ctx)
	if err != nil {
		r.logger.Error("フィンガープリントの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	directives, err := r.client.SendHeartbeat(ctx, r.deviceID, r.playerVersion, fingerprint)
	if err != nil {
		r.metrics.RecordHeartbeatFailure()
		r.logger.Error("ハートビートの送信に失敗しました",
			slog.String("device_id", r.deviceID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.metrics.RecordHeartbeatSuccess()

	if directives.NeedsScreenshotUpdate {
		r.handleScreenshot(ctx)
	}

	// リフレッシュフラグの確認はハートビート成功後のフォローアップ呼び出し。
	// このサイドチャネルのエラーはハートビート周期に影響させず完全に握りつぶす
	r.checkRefreshFlag(ctx)
}

// handleScreenshot はスクリーンショットの取得・アップロードと古い世代の整理を行う。
// コラボレータの失敗はハートビートサイクルを中断しない。
func (r *Reporter) handleScreenshot(ctx context.Context) {
	if err := r.shots.CaptureAndUpload(ctx, r.deviceID); err != nil {
		r.logger.Error("スクリーンショットの取得・アップロードに失敗しました",
			slog.String("device_id", r.deviceID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := r.shots.CleanupOld(ctx, r.deviceID, r.keepCount); err != nil {
		r.logger.Error("古いスクリーンショットの整理に失敗しました",
			slog.String("device_id", r.deviceID),
			slog.Int("keep_count", r.keepCount),
			slog.String("error", err.Error()),
		)
	}
}

// checkRefreshFlag はリフレッシュフラグを確認し、立っている場合は
// 同期ポーラーの即時再実行をトリガーしてフラグをクリアする。
// 新しいフィンガープリントをエコーバックしてサーバーが受信を確認できるようにする。
func (r *Reporter) checkRefreshFlag(ctx context.Context) {
	needsRefresh, err := r.client.CheckRefreshFlag(ctx, r.deviceID)
	if err != nil {
		r.logger.Warn("リフレッシュフラグの確認に失敗しました",
			slog.String("device_id", r.deviceID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !needsRefresh {
		return
	}

	r.logger.Info("リフレッシュフラグが立っているため即時同期を実行します",
		slog.String("device_id", r.deviceID),
	)

	newFingerprint, err := r.refresher.ForceRefresh(ctx)
	if err != nil {
		r.logger.Error("強制リフレッシュに失敗しました",
			slog.String("device_id", r.deviceID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.client.ClearRefreshFlag(ctx, r.deviceID, newFingerprint); err != nil {
		r.logger.Warn("リフレッシュフラグのクリアに失敗しました",
			slog.String("device_id", r.deviceID),
			slog.String("error", err.Error()),
		)
	}
}
