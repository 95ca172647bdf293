// Package model はドメインモデルを定義する。
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ContentMode はコンテンツの配信モードを表す。
type ContentMode string

const (
	// ModePlaylist はプレイリストモード。固定の再生リストを順番に表示する。
	ModePlaylist ContentMode = "playlist"
	// ModeSchedule はスケジュールモード。時間帯ごとのスケジュールエントリを表示する。
	ModeSchedule ContentMode = "schedule"
)

// ItemType はコンテンツアイテムの種別を表す。
type ItemType string

const (
	// ItemTypeImage は静止画アイテム。
	ItemTypeImage ItemType = "image"
	// ItemTypeVideo は動画アイテム。
	ItemTypeVideo ItemType = "video"
	// ItemTypeHTML はHTMLウィジェットアイテム。表示前にサニタイズが必要。
	ItemTypeHTML ItemType = "html"
)

// Screen は表示先スクリーンの記述子。
type Screen struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Orientation string `json:"orientation,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ContentGroup はプレイリストまたはアクティブなスケジュールエントリの記述子。
type ContentGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ScheduleEntryID はスケジュールモード時のみ設定される。
	ScheduleEntryID string `json:"schedule_entry_id,omitempty"`
}

// ContentItem は表示対象の1アイテム。
type ContentItem struct {
	MediaID string   `json:"media_id"`
	Type    ItemType `json:"type"`
	URL     string   `json:"url"`
	// Body はhtmlタイプのアイテムのみ設定される。表示前にサニタイズされる。
	Body string `json:"body,omitempty"`
	// DurationSeconds はアイテムの表示秒数。
	DurationSeconds int `json:"duration_seconds"`
}

// ResolvedContent はコントロールプレーンが算出した「今このスクリーンに何を表示すべきか」の回答。
// レンダラとキャッシュからは読み取り専用として扱われる。
type ResolvedContent struct {
	Mode   ContentMode   `json:"mode"`
	Screen Screen        `json:"screen"`
	Group  ContentGroup  `json:"group"`
	Items  []ContentItem `json:"items"`
}

// Validate はネットワーク境界でResolvedContentのスキーマを検証する。
// モードが未知、スクリーンIDが空、アイテムに必須フィールドが欠けている場合はエラーを返す。
func (c *ResolvedContent) Validate() error {
	if c.Mode != ModePlaylist && c.Mode != ModeSchedule {
		return NewInvalidContentError(fmt.Sprintf("未知のモードです: %q", c.Mode))
	}
	if c.Screen.ID == "" {
		return NewInvalidContentError("スクリーンIDが設定されていません")
	}
	for i, item := range c.Items {
		if item.MediaID == "" {
			return NewInvalidContentError(fmt.Sprintf("アイテム[%d]のmedia_idが設定されていません", i))
		}
		switch item.Type {
		case ItemTypeImage, ItemTypeVideo:
			if item.URL == "" {
				return NewInvalidContentError(fmt.Sprintf("アイテム[%d]のURLが設定されていません", i))
			}
		case ItemTypeHTML:
			// htmlアイテムはURLなしでbodyのみの場合がある
		default:
			return NewInvalidContentError(fmt.Sprintf("アイテム[%d]の種別が未知です: %q", i, item.Type))
		}
		if item.DurationSeconds < 0 {
			return NewInvalidContentError(fmt.Sprintf("アイテム[%d]の表示秒数が負です: %d", i, item.DurationSeconds))
		}
	}
	return nil
}

// Fingerprint はコンテンツ全体の決定的ハッシュを返す。
// ポーリング間でコンテンツが実際に変化したかの判定に使用する。
// JSONシリアライズは構造体フィールド順で決定的であるため、同一内容は常に同一ハッシュになる。
func (c *ResolvedContent) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		// ResolvedContentは常にシリアライズ可能な型のみで構成される
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MediaFingerprint は参照メディアURLのみを対象とした二次ハッシュを返す。
// テキストだけが変わった場合にメディアの再ダウンロードを避けるために使用する。
// アイテム順序を含めてハッシュするため、並び替えも変更として検出される。
func (c *ResolvedContent) MediaFingerprint() string {
	h := sha256.New()
	for _, item := range c.Items {
		if item.URL != "" {
			h.Write([]byte(item.URL))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MediaURLs はダウンロード対象のメディアURL一覧をアイテム順で返す。
// URLを持たないアイテム（body埋め込みのhtml等）は含まれない。
func (c *ResolvedContent) MediaURLs() []string {
	urls := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	return urls
}

// SyncDescriptor は最後に成功した同期の記録。デバイス状態ストアに永続化される。
type SyncDescriptor struct {
	Fingerprint string      `json:"fingerprint"`
	SyncedAt    time.Time   `json:"synced_at"`
	Mode        ContentMode `json:"mode"`
	GroupID     string      `json:"group_id"`
}
