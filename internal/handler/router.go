// Package handler はローカル管理用HTTPエンドポイントを提供する。
// ヘルスチェック、エンジン状態の確認、Prometheusスクレイプに使用する。
// 外部公開を想定しない（ループバックまたは管理ネットワークのみ）。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kioskd/internal/connection"
	"github.com/hitoshi/kioskd/internal/identity"
	"github.com/hitoshi/kioskd/internal/metrics"
	"github.com/hitoshi/kioskd/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Tracker  *connection.Tracker
	Identity identity.Store
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	DeviceID string
}

// statusResponse はGET /statusのレスポンスボディ。
type statusResponse struct {
	DeviceID           string `json:"device_id"`
	State              string `json:"state"`
	ConsecutiveErrors  int    `json:"consecutive_errors"`
	ContentFingerprint string `json:"content_fingerprint"`
	LastSuccessAt      string `json:"last_success_at,omitempty"`
	LastFailureAt      string `json:"last_failure_at,omitempty"`
}

// NewRouter は管理用エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	// ヘルスチェック（Dockerヘルスチェックのターゲット）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// エンジン状態の確認
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snapshot := deps.Tracker.Snapshot()

		fingerprint, err := deps.Identity.LastFingerprint(req.Context())
		if err != nil {
			deps.Logger.Error("フィンガープリントの読み取りに失敗しました",
				slog.String("error", err.Error()),
			)
		}

		resp := statusResponse{
			DeviceID:           deps.DeviceID,
			State:              string(snapshot.State),
			ConsecutiveErrors:  snapshot.ConsecutiveErrors,
			ContentFingerprint: fingerprint,
		}
		if !snapshot.LastSuccessAt.IsZero() {
			resp.LastSuccessAt = snapshot.LastSuccessAt.Format(time.RFC3339)
		}
		if !snapshot.LastFailureAt.IsZero() {
			resp.LastFailureAt = snapshot.LastFailureAt.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
