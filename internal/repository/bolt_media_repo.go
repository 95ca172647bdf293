package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hitoshi/kioskd/internal/model"
)

// BoltMediaRepo はMediaRepositoryのbbolt実装。
// Blob本体は取得元URLをキーとして保存し、カスケード削除のために
// 所有者インデックス（media_ownerバケット）を併せて維持する。
type BoltMediaRepo struct {
	db *DB
}

// NewBoltMediaRepo はBoltMediaRepoの新しいインスタンスを生成する。
func NewBoltMediaRepo(db *DB) *BoltMediaRepo {
	return &BoltMediaRepo{db: db}
}

// Put はメディアBlobを保存する。
// 同一URLの再保存は上書きとなり、所有者インデックスも更新される。
func (r *BoltMediaRepo) Put(ctx context.Context, blob *model.MediaBlob) error {
	if blob == nil {
		return model.NewInvalidRecordError("Blobがnilです")
	}
	if blob.URL == "" {
		return model.NewInvalidRecordError("URLが設定されていません")
	}
	if len(blob.Data) == 0 {
		return model.NewInvalidRecordError("ペイロードが空です")
	}
	if blob.OwnerContentID == "" {
		return model.NewInvalidRecordError("所有コンテンツIDが設定されていません")
	}

	if blob.CachedAt.IsZero() {
		blob.CachedAt = time.Now()
	}
	blob.Size = int64(len(blob.Data))

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("メディアBlobのシリアライズに失敗: %w", err)
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketMedia).Put([]byte(blob.URL), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMediaOwner).Put(ownerKey(blob.OwnerContentID, blob.URL), []byte(blob.URL))
	})
}

// Get は指定URLのメディアBlobを取得する。見つからない場合はnilを返す。
func (r *BoltMediaRepo) Get(ctx context.Context, url string) (*model.MediaBlob, error) {
	if url == "" {
		return nil, model.NewInvalidRecordError("URLが設定されていません")
	}

	var blob *model.MediaBlob
	err := r.db.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMedia).Get([]byte(url))
		if data == nil {
			return nil
		}
		blob = &model.MediaBlob{}
		return json.Unmarshal(data, blob)
	})
	if err != nil {
		return nil, fmt.Errorf("メディアBlobの読み取りに失敗: %w", err)
	}
	return blob, nil
}
