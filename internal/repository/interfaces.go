// Package repository はローカル永続キャッシュのインターフェースを定義する。
// コンテンツ、メディア、デバイス状態、オフラインイベントの4つの論理ストアを提供する。
package repository

import (
	"context"

	"github.com/hitoshi/kioskd/internal/model"
)

// ContentRepository はキャッシュ済みコンテンツの永続化インターフェース。
type ContentRepository interface {
	// Put はコンテンツレコードを作成または上書きする。
	// ID、Body、Fingerprintのいずれかが欠けている場合はエラーを返す。
	Put(ctx context.Context, record *model.SceneRecord) error

	// Get は指定IDのコンテンツレコードを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, id string) (*model.SceneRecord, error)

	// MarkStale は指定IDのレコードにstaleフラグを立てる。削除はしない。
	// staleなレコードも、それが唯一の表示可能コンテンツであれば配信され続ける。
	MarkStale(ctx context.Context, id string) error

	// Delete は指定IDのレコードを削除する。
	// そのコンテンツが排他的に所有するメディアBlobもカスケード削除される。
	Delete(ctx context.Context, id string) error
}

// MediaRepository はキャッシュ済みメディアBlobの永続化インターフェース。
type MediaRepository interface {
	// Put はメディアBlobを取得元URLをキーとして保存する。
	// URL、Data、OwnerContentIDのいずれかが欠けている場合はエラーを返す。
	Put(ctx context.Context, blob *model.MediaBlob) error

	// Get は指定URLのメディアBlobを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, url string) (*model.MediaBlob, error)
}

// StateRepository はプロセス再起動をまたぐデバイス状態のキー/バリューストア。
// 同期ポーラーとハートビートレポーターのみが書き込む。
type StateRepository interface {
	// Get は指定キーの値を取得する。見つからない場合は空文字列を返す。
	Get(ctx context.Context, key string) (string, error)

	// Set は指定キーに値を保存する。キーが空の場合はエラーを返す。
	Set(ctx context.Context, key, value string) error
}

// EventRepository は接続劣化中に生成されたイベントのキューを提供する。
// イベントはサーバーが受理するまで同期済みにならず、自動削除もされない。
type EventRepository interface {
	// Enqueue はイベントをキューの末尾に追加する。種別が空の場合はエラーを返す。
	Enqueue(ctx context.Context, eventType string, payload []byte) (*model.OfflineEvent, error)

	// ListPending は未同期イベントを作成順（古い順）で返す。
	ListPending(ctx context.Context) ([]*model.OfflineEvent, error)

	// MarkSynced は指定IDのイベント群を同期済みにする。
	MarkSynced(ctx context.Context, ids []string) error
}

// Janitor はキャッシュの保守操作を提供する。
// 対象はコンテンツとメディアのみ。デバイス状態とオフラインイベントキューは
// 消失が正当性の欠陥となるため、どちらの操作でも一切触れない。
type Janitor interface {
	// PurgeOlderThan は指定日数より古いコンテンツ・メディアを削除し、削除件数を返す。
	PurgeOlderThan(ctx context.Context, days int) (int, error)

	// ClearAll はコンテンツとメディアを全削除する。
	ClearAll(ctx context.Context) error
}
