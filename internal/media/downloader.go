// Package media は参照メディアアセットのダウンロードとキャッシュ格納を提供する。
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Downloader は解決済みコンテンツが参照するメディアアセットをダウンロードし、
// ローカルキャッシュに格納する。大きなプレイリスト変更がキオスクの上り回線を
// 飽和させないよう、レートリミッタでダウンロード頻度を制御する。
type Downloader struct {
	mediaRepo repository.MediaRepository
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	limiter   *rate.Limiter
	timeout   time.Duration
	maxSize   int64
}

// NewDownloader はDownloaderの新しいインスタンスを生成する。
// downloadsPerSecが0以下の場合はデフォルト値4を使用する。
func NewDownloader(
	mediaRepo repository.MediaRepository,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
	downloadsPerSec float64,
) *Downloader {
	if downloadsPerSec <= 0 {
		downloadsPerSec = 4
	}
	return &Downloader{
		mediaRepo: mediaRepo,
		ssrfGuard: ssrfGuard,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(downloadsPerSec), 1),
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// PrefetchAll はコンテンツが参照する全メディアをダウンロードしてキャッシュする。
// 既にキャッシュ済みのURLはスキップする。個別URLの失敗はログに記録して続行し、
// 失敗件数を返す（1件の破損アセットが他のアセットのキャッシュを妨げないようにする）。
func (d *Downloader) PrefetchAll(ctx context.Context, content *model.ResolvedContent, ownerContentID string) int {
	failures := 0
	for _, rawURL := range content.MediaURLs() {
		cached, err := d.mediaRepo.Get(ctx, rawURL)
		if err == nil && cached != nil {
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			// コンテキストキャンセル時は残りを諦める。キャンセルは失敗件数に数えない
			d.logger.Warn("メディアの事前取得を中断しました",
				slog.String("owner_content_id", ownerContentID),
				slog.String("error", err.Error()),
			)
			return failures
		}

		if err := d.Download(ctx, rawURL, ownerContentID); err != nil {
			d.logger.Error("メディアのダウンロードに失敗しました",
				slog.String("url", rawURL),
				slog.String("owner_content_id", ownerContentID),
				slog.String("error", err.Error()),
			)
			failures++
		}
	}
	return failures
}

// Download は単一メディアアセットをダウンロードしてキャッシュに格納する。
// ダウンロード前にSSRF検証を行い、レスポンスサイズを上限でキャップする。
func (d *Downloader) Download(ctx context.Context, rawURL, ownerContentID string) error {
	if err := d.ssrfGuard.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := d.ssrfGuard.NewSafeClient(d.timeout, d.maxSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("メディア取得がステータス %d を返しました", resp.StatusCode)
	}

	// サイズ上限+1バイトで読み、超過を検出する
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return fmt.Errorf("メディアサイズが上限を超えています: %d > %d", len(data), d.maxSize)
	}

	blob := &model.MediaBlob{
		URL:            rawURL,
		Data:           data,
		OwnerContentID: ownerContentID,
		MimeType:       resp.Header.Get("Content-Type"),
		CachedAt:       time.Now(),
	}
	if err := d.mediaRepo.Put(ctx, blob); err != nil {
		return fmt.Errorf("メディアBlobの保存に失敗: %w", err)
	}

	d.logger.Info("メディアをキャッシュしました",
		slog.String("url", rawURL),
		slog.Int("size", len(data)),
		slog.String("mime_type", blob.MimeType),
	)
	return nil
}
