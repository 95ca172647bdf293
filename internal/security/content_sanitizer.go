// Package security はプレイヤーのセキュリティ機能を提供する。
//
// ContentSanitizerService はhtmlタイプのコンテンツアイテムのボディをサニタイズする。
// HTMLウィジェットはコントロールプレーン経由で任意の作成者から届くため、
// レンダラに渡す前に許可リストベースのポリシーで安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 同期ポーラーがネットワーク境界でhtmlアイテムに適用する。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// imgタグのsrc属性はhttpsスキームのみ許可される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: サイネージウィジェットで使用されるテキスト・レイアウト系タグ
//     (div, span, p, br, h1〜h4, ul, ol, li, strong, em, img)
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - imgのsrc属性: httpsスキームのみ許可
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// サイネージウィジェットのレイアウトに必要なタグのみ許可する。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements(
		"div", "span", "p", "br",
		"h1", "h2", "h3", "h4",
		"ul", "ol", "li",
		"strong", "em",
	)

	// スタイル制御用にclass属性のみ許可する（style属性は許可しない）
	p.AllowAttrs("class").Globally()

	// imgタグ: src属性はhttpsのみ、altはアクセシビリティのため許可
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
