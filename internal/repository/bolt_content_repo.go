package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hitoshi/kioskd/internal/model"
)

// BoltContentRepo はContentRepositoryのbbolt実装。
type BoltContentRepo struct {
	db *DB
}

// NewBoltContentRepo はBoltContentRepoの新しいインスタンスを生成する。
func NewBoltContentRepo(db *DB) *BoltContentRepo {
	return &BoltContentRepo{db: db}
}

// Put はコンテンツレコードを作成または上書きする。
// 必須の識別フィールドが欠けたレコードは書き込まれずに拒否される。
func (r *BoltContentRepo) Put(ctx context.Context, record *model.SceneRecord) error {
	if record == nil {
		return model.NewInvalidRecordError("レコードがnilです")
	}
	if record.ID == "" {
		return model.NewInvalidRecordError("IDが設定されていません")
	}
	if len(record.Body) == 0 {
		return model.NewInvalidRecordError("ボディが空です")
	}
	if record.Fingerprint == "" {
		return model.NewInvalidRecordError("フィンガープリントが設定されていません")
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("レコードのシリアライズに失敗: %w", err)
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScenes).Put([]byte(record.ID), data)
	})
}

// Get は指定IDのコンテンツレコードを取得する。見つからない場合はnilを返す。
func (r *BoltContentRepo) Get(ctx context.Context, id string) (*model.SceneRecord, error) {
	if id == "" {
		return nil, model.NewInvalidRecordError("IDが設定されていません")
	}

	var record *model.SceneRecord
	err := r.db.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScenes).Get([]byte(id))
		if data == nil {
			return nil
		}
		record = &model.SceneRecord{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, fmt.Errorf("レコードの読み取りに失敗: %w", err)
	}
	return record, nil
}

// MarkStale は指定IDのレコードにstaleフラグを立てる。
// レコードが存在しない場合はエラーを返す。削除はしない。
func (r *BoltContentRepo) MarkStale(ctx context.Context, id string) error {
	if id == "" {
		return model.NewInvalidRecordError("IDが設定されていません")
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScenes)
		data := b.Get([]byte(id))
		if data == nil {
			return model.NewContentNotCachedError(id)
		}

		var record model.SceneRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("レコードのデシリアライズに失敗: %w", err)
		}

		now := time.Now()
		record.Stale = true
		record.StaleAt = &now

		updated, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("レコードのシリアライズに失敗: %w", err)
		}
		return b.Put([]byte(id), updated)
	})
}

// Delete は指定IDのレコードを削除し、そのコンテンツが排他的に所有する
// メディアBlobをカスケード削除する。他の所有者に移ったBlobは削除されない。
// 冪等: レコードが存在しない場合でもエラーにならない。
func (r *BoltContentRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.NewInvalidRecordError("IDが設定されていません")
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketScenes).Delete([]byte(id)); err != nil {
			return err
		}

		mediaBucket := tx.Bucket(bucketMedia)
		ownerBucket := tx.Bucket(bucketMediaOwner)

		// 所有者インデックスを走査し、現在もこのコンテンツが所有しているBlobのみ削除する
		prefix := ownerPrefix(id)
		c := ownerBucket.Cursor()
		var indexKeys [][]byte
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			url := string(v)
			data := mediaBucket.Get([]byte(url))
			if data != nil {
				var blob model.MediaBlob
				if err := json.Unmarshal(data, &blob); err != nil {
					return fmt.Errorf("メディアBlobのデシリアライズに失敗: %w", err)
				}
				if blob.OwnerContentID == id {
					if err := mediaBucket.Delete([]byte(url)); err != nil {
						return err
					}
				}
			}
			indexKeys = append(indexKeys, append([]byte(nil), k...))
		}

		for _, k := range indexKeys {
			if err := ownerBucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
