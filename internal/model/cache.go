package model

import "time"

// SceneRecord はローカルキャッシュに永続化されるコンテンツのレコード。
// デバイスIDをキーとして、最後に取得に成功したResolvedContentを保持する。
type SceneRecord struct {
	// ID はコンテンツの識別子（デバイスIDをキーとして使用する）。
	ID string `json:"id"`
	// Body はResolvedContentのシリアライズ済みボディ。
	Body []byte `json:"body"`
	// Fingerprint はコンテンツ全体のハッシュ。
	Fingerprint string `json:"fingerprint"`
	// MediaFingerprint は参照メディアのみを対象としたハッシュ。
	// メディアが変わっていない場合の再ダウンロード回避に使用する。
	MediaFingerprint string `json:"media_fingerprint"`
	// Stale はコントロールプレーンから置き換え済みと通知されたが、
	// まだ後継コンテンツを取得できていないことを示す。
	// staleなレコードも唯一の表示可能コンテンツであれば配信される。
	Stale bool `json:"stale"`
	// StaleAt はstaleフラグが立てられた時刻。未設定の場合はnil。
	StaleAt *time.Time `json:"stale_at,omitempty"`
	// CreatedAt はレコードの作成・上書き時刻。
	CreatedAt time.Time `json:"created_at"`
}

// MediaBlob はキャッシュされたメディアアセット。取得元URLをキーとする。
type MediaBlob struct {
	// URL は取得元URL（主キー）。
	URL string `json:"url"`
	// Data はバイナリペイロード。
	Data []byte `json:"data"`
	// OwnerContentID は所有するコンテンツのID。カスケード削除に使用する。
	OwnerContentID string `json:"owner_content_id"`
	// MimeType はContent-Typeヘッダから取得したMIMEタイプ。
	MimeType string `json:"mime_type"`
	// Size はペイロードのバイト数。
	Size int64 `json:"size"`
	// CachedAt はキャッシュされた時刻。
	CachedAt time.Time `json:"cached_at"`
}

// OfflineEvent は接続劣化中に生成された送信待ちのイベント。
// 接続回復後に作成順で送信され、サーバーが受理した後にのみ同期済みとなる。
type OfflineEvent struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	Synced    bool       `json:"synced"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}
