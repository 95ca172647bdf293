// Package app はアプリケーションの初期化とエントリーポイントを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kioskd/internal/config"
	"github.com/hitoshi/kioskd/internal/connection"
	"github.com/hitoshi/kioskd/internal/control"
	"github.com/hitoshi/kioskd/internal/handler"
	"github.com/hitoshi/kioskd/internal/identity"
	"github.com/hitoshi/kioskd/internal/logger"
	"github.com/hitoshi/kioskd/internal/media"
	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/renderer"
	"github.com/hitoshi/kioskd/internal/repository"
	"github.com/hitoshi/kioskd/internal/screenshot"
	"github.com/hitoshi/kioskd/internal/security"
	commandpkg "github.com/hitoshi/kioskd/internal/worker/command"
	"github.com/hitoshi/kioskd/internal/worker/heartbeat"
	"github.com/hitoshi/kioskd/internal/worker/janitor"
	syncerpkg "github.com/hitoshi/kioskd/internal/worker/syncer"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("ADMIN_PORT")
		if port == "" {
			port = "8990"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting player agent",
		slog.String("command", string(cmd)),
		slog.String("device_id", cfg.DeviceID),
		slog.String("control_plane_url", cfg.ControlPlaneURL),
		slog.String("player_version", cfg.PlayerVersion),
	)

	switch cmd {
	case CommandPurge:
		return runPurge(cfg)
	default:
		return runAgent(cfg)
	}
}

// runAgent はエージェントモードで起動する。
// ローカルキャッシュを開き、全依存関係をワイヤリングし、
// 3つの独立したポーリングループと管理用HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信すると全タイマーを停止してシャットダウンする。
func runAgent(cfg *config.Config) error {
	// 1. ローカルキャッシュのオープン
	db, err := repository.Open(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	slog.Info("local cache opened", slog.String("cache_dir", cfg.CacheDir))

	// 2. リポジトリの初期化
	contentRepo := repository.NewBoltContentRepo(db)
	mediaRepo := repository.NewBoltMediaRepo(db)
	stateRepo := repository.NewBoltStateRepo(db)
	eventRepo := repository.NewBoltEventRepo(db)
	cacheJanitor := repository.NewBoltJanitor(db)

	// 3. デバイス識別ストアの初期化。
	// 設定のデバイスIDを永続化し、プロセス再起動をまたいで維持する
	identityStore := identity.NewStore(stateRepo)
	if err := identityStore.SetDeviceID(context.Background(), cfg.DeviceID); err != nil {
		return fmt.Errorf("failed to persist device id: %w", err)
	}

	// 4. 共有状態とメトリクスの初期化
	tracker := connection.NewTracker()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. コントロールプレーンクライアントの初期化
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := control.NewClient(httpClient, slog.Default(), cfg.ControlPlaneURL, cfg.PlayerVersion)

	// 6. セキュリティサービスとメディアダウンローダーの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	downloader := media.NewDownloader(
		mediaRepo, ssrfGuard, slog.Default(),
		cfg.HTTPTimeout, cfg.MediaMaxSize, cfg.MediaDownloadsPerSec,
	)

	// 7. コラボレータの初期化（レンダラ・スクリーンショットは未接続環境向けの実装）
	rend := renderer.NewLogRenderer(slog.Default())
	shots := screenshot.NewNoopService(slog.Default())

	// 8. ワーカーの初期化
	syncer := syncerpkg.New(
		client, contentRepo, stateRepo, eventRepo, identityStore,
		tracker, rend, sanitizer, downloader, collector,
		slog.Default(), cfg.DeviceID,
	)

	reporter := heartbeat.NewReporter(
		client, shots, identityStore, syncer, collector,
		slog.Default(), cfg.DeviceID, cfg.PlayerVersion, cfg.ScreenshotKeep,
	)

	purgeJob := janitor.NewPurgeJob(cacheJanitor, slog.Default(), cfg.CacheRetentionDays)
	drainJob := janitor.NewDrainJob(eventRepo, client, tracker, collector, slog.Default(), cfg.DeviceID)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 9. コマンドチャンネルの初期化と実行関数の登録
	runner := commandpkg.NewRunner(client, collector, slog.Default(), cfg.DeviceID)
	runner.RegisterExecutor(model.CommandRefreshContent, func(ctx context.Context, cmd *model.DeviceCommand) error {
		_, err := syncer.ForceRefresh(ctx)
		return err
	})
	runner.RegisterExecutor(model.CommandScreenshot, func(ctx context.Context, cmd *model.DeviceCommand) error {
		if err := shots.CaptureAndUpload(ctx, cfg.DeviceID); err != nil {
			return err
		}
		return shots.CleanupOld(ctx, cfg.DeviceID, cfg.ScreenshotKeep)
	})
	runner.RegisterExecutor(model.CommandClearCache, func(ctx context.Context, cmd *model.DeviceCommand) error {
		return cacheJanitor.ClearAll(ctx)
	})
	runner.RegisterExecutor(model.CommandRestart, func(ctx context.Context, cmd *model.DeviceCommand) error {
		// キオスクシェルの監視プロセスがプロセス終了後に再起動する
		slog.Info("restart command received, shutting down")
		go func() {
			time.Sleep(500 * time.Millisecond)
			cancel()
		}()
		return nil
	})

	// 10. 管理用HTTPサーバーの起動
	router := handler.NewRouter(&handler.RouterDeps{
		Tracker:  tracker,
		Identity: identityStore,
		Gatherer: registry,
		Logger:   slog.Default(),
		DeviceID: cfg.DeviceID,
	})

	server := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("admin server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server listen error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-stop
		slog.Info("shutting down player agent...")
		cancel()
	}()

	// 11. 各ループの起動。
	// 各ループは独立したタイマーを所有し、1つの呼び出しの停滞が他を妨げない
	go reporter.Start(ctx, cfg.HeartbeatInterval)
	go runner.Start(ctx, cfg.CommandInterval)

	// キャッシュパージジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := purgeJob.Run(ctx); err != nil {
			slog.Error("purge job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := purgeJob.Run(ctx); err != nil {
					slog.Error("purge job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// オフラインイベント排出ジョブをバックグラウンド実行
	go func() {
		ticker := time.NewTicker(cfg.EventDrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := drainJob.Run(ctx); err != nil {
					slog.Error("event drain job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// コンテンツ同期ポーラーをメインgoroutineで実行（ブロッキング）
	syncer.Start(ctx, cfg.SyncInterval)

	// シャットダウン: 管理サーバーを停止する
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}

	slog.Info("player agent stopped gracefully")
	return nil
}

// runPurge はキャッシュパージを1回実行して終了する。
func runPurge(cfg *config.Config) error {
	db, err := repository.Open(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	purgeJob := janitor.NewPurgeJob(repository.NewBoltJanitor(db), slog.Default(), cfg.CacheRetentionDays)
	if err := purgeJob.Run(context.Background()); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	slog.Info("cache purge completed")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// 管理サーバーの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
