// Package janitor はキャッシュの定期保守とオフラインイベントの送信を提供する。
// 期限切れのコンテンツ・メディアを日次で削除する。デバイス状態と
// オフラインイベントキューは自動削除の対象外（消失は正当性の欠陥）。
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/kioskd/internal/connection"
	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/repository"
)

// PurgeJob は保持期間を超過したコンテンツ・メディアの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type PurgeJob struct {
	janitor       repository.Janitor
	logger        *slog.Logger
	RetentionDays int // キャッシュの保持日数（デフォルト: 30）
}

// NewPurgeJob は新しいPurgeJobを生成する。
// retentionDaysが0以下の場合はデフォルト値30を使用する。
func NewPurgeJob(j repository.Janitor, logger *slog.Logger, retentionDays int) *PurgeJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &PurgeJob{
		janitor:       j,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は保持期間を超過したコンテンツ・メディアを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.janitor.PurgeOlderThan(ctx, j.RetentionDays)
	if err != nil {
		j.logger.Error("キャッシュパージジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("キャッシュパージの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("キャッシュパージジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// EventPusher はオフラインイベント送信のインターフェース。
type EventPusher interface {
	PushEvents(ctx context.Context, deviceID string, events []*model.OfflineEvent) error
}

// DrainJob は接続回復後にオフラインイベントキューを排出するジョブ。
// イベントは作成順（古い順）で送信され、サーバーが受理した後にのみ
// 同期済みとなる。黙って捨てられることはない。
type DrainJob struct {
	eventRepo repository.EventRepository
	pusher    EventPusher
	tracker   *connection.Tracker
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	deviceID  string
}

// NewDrainJob は新しいDrainJobを生成する。
func NewDrainJob(
	eventRepo repository.EventRepository,
	pusher EventPusher,
	tracker *connection.Tracker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	deviceID string,
) *DrainJob {
	return &DrainJob{
		eventRepo: eventRepo,
		pusher:    pusher,
		tracker:   tracker,
		metrics:   collector,
		logger:    logger,
		deviceID:  deviceID,
	}
}

// Run は未同期イベントを1回排出する。
// 接続状態がConnectedでない場合は何もしない（次回の周期で再試行する）。
func (j *DrainJob) Run(ctx context.Context) error {
	if j.tracker.State() != connection.StateConnected {
		return nil
	}

	events, err := j.eventRepo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("未同期イベントの取得に失敗: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	if err := j.pusher.PushEvents(ctx, j.deviceID, events); err != nil {
		j.logger.Error("オフラインイベントの送信に失敗しました",
			slog.Int("event_count", len(events)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("オフラインイベントの送信に失敗: %w", err)
	}

	// サーバーが受理した後にのみ同期済みにする
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := j.eventRepo.MarkSynced(ctx, ids); err != nil {
		return fmt.Errorf("イベントの同期済みマークに失敗: %w", err)
	}

	j.metrics.RecordEventsDrained(len(events))
	j.logger.Info("オフラインイベントを同期しました",
		slog.Int("event_count", len(events)),
	)
	return nil
}
