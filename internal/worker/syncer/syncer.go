// Package syncer はコンテンツ同期ポーラーを提供する。
// 固定間隔でコントロールプレーンから解決済みコンテンツを取得し、
// 変化検出、キャッシュ永続化、オフライン時のキャッシュフォールバックを行う。
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/kioskd/internal/connection"
	"github.com/hitoshi/kioskd/internal/identity"
	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/renderer"
	"github.com/hitoshi/kioskd/internal/repository"
)

// デバイス状態ストア上のキー
const (
	keyLastSync          = "last_sync"
	keyConnectionHistory = "connection_history"
)

// ContentResolver は解決済みコンテンツ取得のインターフェース。
type ContentResolver interface {
	ResolveContent(ctx context.Context, deviceID string) (*model.ResolvedContent, error)
}

// HTMLSanitizer はhtmlアイテムのサニタイズインターフェース。
type HTMLSanitizer interface {
	Sanitize(rawHTML string) string
}

// MediaPrefetcher は参照メディアの事前ダウンロードインターフェース。
type MediaPrefetcher interface {
	PrefetchAll(ctx context.Context, content *model.ResolvedContent, ownerContentID string) int
}

// Syncer はコンテンツ同期ポーラー。
// 成功時は接続状態をConnectedにし、新しいコンテンツをレンダラへ渡してキャッシュする。
// 失敗時はキャッシュから最終正常コンテンツを読み、存在すればOfflineとして配信を継続する。
type Syncer struct {
	resolver    ContentResolver
	contentRepo repository.ContentRepository
	stateRepo   repository.StateRepository
	eventRepo   repository.EventRepository
	identity    identity.Store
	tracker     *connection.Tracker
	renderer    renderer.Renderer
	sanitizer   HTMLSanitizer
	prefetcher  MediaPrefetcher
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	deviceID    string

	// mu はティッカー由来とForceRefresh由来のRunOnceの多重実行を防ぐ。
	mu sync.Mutex
	// lastRendered は直近にレンダラへ渡したフィンガープリント。
	lastRendered string
	// lastOffline は直近のレンダリングがキャッシュ由来だったかを示す。
	// 復旧時にフィンガープリントが同一でもオフラインインジケータを消すために使用する。
	lastOffline bool
	// hasCache は配信可能なキャッシュエントリの存在有無。バックオフ計算に使用する。
	hasCache bool

	forceCh chan struct{}
}

// New はSyncerの新しいインスタンスを生成する。
func New(
	resolver ContentResolver,
	contentRepo repository.ContentRepository,
	stateRepo repository.StateRepository,
	eventRepo repository.EventRepository,
	identityStore identity.Store,
	tracker *connection.Tracker,
	rend renderer.Renderer,
	sanitizer HTMLSanitizer,
	prefetcher MediaPrefetcher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	deviceID string,
) *Syncer {
	return &Syncer{
		resolver:    resolver,
		contentRepo: contentRepo,
		stateRepo:   stateRepo,
		eventRepo:   eventRepo,
		identity:    identityStore,
		tracker:     tracker,
		renderer:    rend,
		sanitizer:   sanitizer,
		prefetcher:  prefetcher,
		metrics:     collector,
		logger:      logger,
		deviceID:    deviceID,
		forceCh:     make(chan struct{}, 1),
	}
}

// Start は同期ポーラーを起動する。起動直後に1回実行し、
// 以降は成功時にはintervalで、失敗時には指数バックオフで次回実行をスケジュールする。
// バックオフ待機はタイマーによる次回実行の繰り延べであり、ブロッキングスリープではない。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("コンテンツ同期ポーラーを開始しました",
		slog.Duration("interval", interval),
		slog.String("device_id", s.deviceID),
	)

	// lastRenderedはプロセス内の状態として空から開始する。
	// 永続化済みフィンガープリントと一致していても、新しいプロセスの
	// 最初の成功フェッチは必ずレンダラへ渡す（再起動後の画面は空のため）
	timer := time.NewTimer(0) // 起動直後に1回実行
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("コンテンツ同期ポーラーを停止しました")
			return
		case <-s.forceCh:
			// ForceRefresh側で同期済み。次回実行を通常周期に戻す
			timer.Reset(s.nextDelay(interval))
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("コンテンツ同期に失敗しました",
					slog.String("device_id", s.deviceID),
					slog.String("error", err.Error()),
				)
			}
			timer.Reset(s.nextDelay(interval))
		}
	}
}

// nextDelay は次回実行までの遅延を返す。
// 成功中は通常周期、失敗中は連続エラー回数に基づく指数バックオフ。
func (s *Syncer) nextDelay(interval time.Duration) time.Duration {
	attempts := s.tracker.ConsecutiveErrors()
	if attempts == 0 {
		return interval
	}

	s.mu.Lock()
	hasCache := s.hasCache
	s.mu.Unlock()

	return connection.CalculateBackoff(attempts, hasCache)
}

// ForceRefresh は通常周期の外で即時に1回同期を実行し、
// 実行後の現在のフィンガープリントを返す。
// ハートビートのリフレッシュフラグとリモートコマンドから呼び出される。
func (s *Syncer) ForceRefresh(ctx context.Context) (string, error) {
	err := s.RunOnce(ctx)

	s.mu.Lock()
	fp := s.lastRendered
	s.mu.Unlock()

	// ポーラーループに即時実行済みであることを通知する（多重実行の回避）
	select {
	case s.forceCh <- struct{}{}:
	default:
	}

	return fp, err
}

// RunOnce は同期サイクルを1回実行する。
func (s *Syncer) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	content, err := s.resolver.ResolveContent(ctx, s.deviceID)
	if err != nil {
		s.metrics.RecordSyncFailure()
		return s.handleFailure(ctx, err)
	}

	s.metrics.RecordSyncSuccess()
	s.metrics.RecordSyncLatency(time.Since(start))
	return s.handleSuccess(ctx, content)
}

// handleSuccess は取得成功時の処理を行う。
// フィンガープリントが変化した場合のみレンダラへ渡す。
// キャッシュエントリと最終同期記録は変化の有無にかかわらず毎回永続化する。
func (s *Syncer) handleSuccess(ctx context.Context, content *model.ResolvedContent) error {
	// htmlアイテムはネットワーク境界でサニタイズする
	for i := range content.Items {
		if content.Items[i].Type == model.ItemTypeHTML && content.Items[i].Body != "" {
			content.Items[i].Body = s.sanitizer.Sanitize(content.Items[i].Body)
		}
	}

	fingerprint := content.Fingerprint()
	prevState := s.tracker.State()
	s.tracker.RecordSuccess()

	if prevState == connection.StateOffline || prevState == connection.StateReconnecting {
		s.logger.Info("接続が回復しました",
			slog.String("device_id", s.deviceID),
			slog.String("previous_state", string(prevState)),
		)
		s.recordConnectionEvent(ctx, "connection_restored")
	}

	changed := fingerprint != s.lastRendered
	if changed || s.lastOffline {
		// 変化した場合、またはオフラインインジケータを消す必要がある場合に描画する
		s.renderer.Render(content, false)
		s.lastRendered = fingerprint
		s.lastOffline = false
		if changed {
			s.metrics.RecordContentChange()
			s.logger.Info("コンテンツが変化しました",
				slog.String("device_id", s.deviceID),
				slog.String("fingerprint", fingerprint),
			)
		}
	}

	// 成功のたびに上書きしてCreatedAtを更新する。
	// 安定したコンテンツの現役エントリが保持期限の掃除で失効しないようにする
	if err := s.persistContent(ctx, content, fingerprint); err != nil {
		return err
	}

	// 最終同期記録は毎回永続化する（プロセス再起動時の再開点）
	descriptor := model.SyncDescriptor{
		Fingerprint: fingerprint,
		SyncedAt:    time.Now(),
		Mode:        content.Mode,
		GroupID:     content.Group.ID,
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("同期記録のシリアライズに失敗: %w", err)
	}
	if err := s.stateRepo.Set(ctx, keyLastSync, string(data)); err != nil {
		return fmt.Errorf("同期記録の永続化に失敗: %w", err)
	}
	if err := s.identity.SetLastFingerprint(ctx, fingerprint); err != nil {
		return fmt.Errorf("フィンガープリントの永続化に失敗: %w", err)
	}

	s.hasCache = true
	return nil
}

// persistContent はコンテンツをキャッシュへ永続化し、メディアの事前取得を開始する。
// メディアフィンガープリントが前回と同一の場合、再ダウンロードはスキップされる。
func (s *Syncer) persistContent(ctx context.Context, content *model.ResolvedContent, fingerprint string) error {
	body, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("コンテンツのシリアライズに失敗: %w", err)
	}

	mediaFingerprint := content.MediaFingerprint()
	prev, err := s.contentRepo.Get(ctx, s.deviceID)
	if err != nil {
		s.logger.Error("既存キャッシュの読み取りに失敗しました",
			slog.String("device_id", s.deviceID),
			slog.String("error", err.Error()),
		)
	}

	record := &model.SceneRecord{
		ID:               s.deviceID,
		Body:             body,
		Fingerprint:      fingerprint,
		MediaFingerprint: mediaFingerprint,
		CreatedAt:        time.Now(),
	}
	if err := s.contentRepo.Put(ctx, record); err != nil {
		return fmt.Errorf("コンテンツのキャッシュ永続化に失敗: %w", err)
	}

	// テキストのみの変更でメディアが変わっていない場合は再ダウンロードしない
	if prev == nil || prev.MediaFingerprint != mediaFingerprint {
		if failures := s.prefetcher.PrefetchAll(ctx, content, s.deviceID); failures > 0 {
			s.logger.Warn("一部メディアの事前取得に失敗しました",
				slog.String("device_id", s.deviceID),
				slog.Int("failures", failures),
			)
		}
	}
	return nil
}

// handleFailure は取得失敗時の処理を行う。
// キャッシュが存在すればそれをレンダラへ渡してOfflineとし、
// 存在しなければ最後に表示した内容を維持したまま（画面を空にせず）リトライを続ける。
func (s *Syncer) handleFailure(ctx context.Context, fetchErr error) error {
	record, err := s.contentRepo.Get(ctx, s.deviceID)
	if err != nil {
		s.logger.Error("キャッシュの読み取りに失敗しました",
			slog.String("device_id", s.deviceID),
			slog.String("error", err.Error()),
		)
		record = nil
	}

	hasCache := record != nil
	s.hasCache = hasCache

	prevState := s.tracker.State()
	newState := s.tracker.RecordFailure(hasCache)

	if prevState == connection.StateConnected && newState != connection.StateConnected {
		s.recordConnectionEvent(ctx, "connection_lost")
	}

	if record == nil {
		// 初回取得前でキャッシュもない: 何も表示できないが画面は空にしない。
		// ConnectingまたはReconnectingのまま積極的にリトライする
		s.logger.Warn("キャッシュが存在しないため前回の表示を維持します",
			slog.String("device_id", s.deviceID),
			slog.String("state", string(newState)),
		)
		return fetchErr
	}

	var content model.ResolvedContent
	if err := json.Unmarshal(record.Body, &content); err != nil {
		return fmt.Errorf("キャッシュ済みコンテンツのデシリアライズに失敗: %w", err)
	}

	// 同一のキャッシュコンテンツを毎サイクル再描画しない
	if s.lastRendered != record.Fingerprint || !s.lastOffline {
		s.renderer.Render(&content, true)
		s.lastRendered = record.Fingerprint
		s.lastOffline = true
		s.metrics.RecordCacheServe()
		s.logger.Info("キャッシュからコンテンツを配信します",
			slog.String("device_id", s.deviceID),
			slog.String("fingerprint", record.Fingerprint),
			slog.Bool("stale", record.Stale),
			slog.String("state", string(newState)),
		)
	}

	return fetchErr
}

// recordConnectionEvent は接続状態の変化をオフラインイベントキューと
// デバイス状態の接続履歴に記録する。記録の失敗は同期サイクルを妨げない。
func (s *Syncer) recordConnectionEvent(ctx context.Context, eventType string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"at":                 time.Now().Format(time.RFC3339),
		"consecutive_errors": s.tracker.ConsecutiveErrors(),
	})
	if _, err := s.eventRepo.Enqueue(ctx, eventType, payload); err != nil {
		s.logger.Error("接続イベントの記録に失敗しました",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
	if err := s.stateRepo.Set(ctx, keyConnectionHistory, eventType+" "+time.Now().Format(time.RFC3339)); err != nil {
		s.logger.Error("接続履歴の更新に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
