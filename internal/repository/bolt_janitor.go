package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltJanitor はJanitorのbbolt実装。
// 対象はscenesとmedia（および所有者インデックス）のみ。
// device_stateとoffline_eventsはどちらの操作でも一切触れない。
type BoltJanitor struct {
	db *DB
}

// NewBoltJanitor はBoltJanitorの新しいインスタンスを生成する。
func NewBoltJanitor(db *DB) *BoltJanitor {
	return &BoltJanitor{db: db}
}

// PurgeOlderThan は指定日数より古いコンテンツ・メディアを削除し、削除件数を返す。
// コンテンツはCreatedAt、メディアはCachedAtで判定する。
func (j *BoltJanitor) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("保持日数は正の値である必要があります: %d", days)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted := 0

	err := j.db.bolt.Update(func(tx *bolt.Tx) error {
		// 期限切れコンテンツの削除
		scenes := tx.Bucket(bucketScenes)
		var sceneKeys [][]byte
		err := scenes.ForEach(func(k, v []byte) error {
			var rec struct {
				CreatedAt time.Time `json:"created_at"`
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("レコードのデシリアライズに失敗: %w", err)
			}
			if rec.CreatedAt.Before(cutoff) {
				sceneKeys = append(sceneKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range sceneKeys {
			if err := scenes.Delete(k); err != nil {
				return err
			}
			deleted++
		}

		// 期限切れメディアの削除
		media := tx.Bucket(bucketMedia)
		owner := tx.Bucket(bucketMediaOwner)
		var mediaKeys [][]byte
		ownerIDs := make(map[string]string)
		err = media.ForEach(func(k, v []byte) error {
			var blob struct {
				OwnerContentID string    `json:"owner_content_id"`
				CachedAt       time.Time `json:"cached_at"`
			}
			if err := json.Unmarshal(v, &blob); err != nil {
				return fmt.Errorf("メディアBlobのデシリアライズに失敗: %w", err)
			}
			if blob.CachedAt.Before(cutoff) {
				mediaKeys = append(mediaKeys, append([]byte(nil), k...))
				ownerIDs[string(k)] = blob.OwnerContentID
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range mediaKeys {
			if err := media.Delete(k); err != nil {
				return err
			}
			if err := owner.Delete(ownerKey(ownerIDs[string(k)], string(k))); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ClearAll はコンテンツとメディアを全削除する。
// バケットを削除して再作成することで一括クリアする。
func (j *BoltJanitor) ClearAll(ctx context.Context) error {
	return j.db.bolt.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketScenes, bucketMedia, bucketMediaOwner} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}
