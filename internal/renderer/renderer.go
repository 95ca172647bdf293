// Package renderer はレンダリングエンジンとの境界インターフェースを定義する。
// レンダリング自体はこのエンジンのスコープ外であり、下流のコラボレータが実装する。
package renderer

import (
	"log/slog"

	"github.com/hitoshi/kioskd/internal/model"
)

// Renderer は解決済みコンテンツを受け取って画面に描画するコラボレータ。
type Renderer interface {
	// Render はコンテンツを描画する。isOfflineがtrueの場合、コンテンツは
	// ライブ取得ではなくローカルキャッシュ由来であり、レンダラは
	// 可視のオフラインインジケータを表示しなければならない。
	Render(content *model.ResolvedContent, isOffline bool)
}

// LogRenderer は描画内容をログに出力するRendererの実装。
// レンダリングエンジンが接続されていないヘッドレス実行で使用する。
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer はLogRendererの新しいインスタンスを生成する。
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

// Render は描画要求をログに出力する。
func (r *LogRenderer) Render(content *model.ResolvedContent, isOffline bool) {
	r.logger.Info("コンテンツを描画します",
		slog.String("mode", string(content.Mode)),
		slog.String("screen_id", content.Screen.ID),
		slog.String("group_id", content.Group.ID),
		slog.Int("item_count", len(content.Items)),
		slog.Bool("offline_mode", isOffline),
	)
}
