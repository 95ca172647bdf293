package repository

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/hitoshi/kioskd/internal/model"
)

// BoltStateRepo はStateRepositoryのbbolt実装。
// デバイスID、最終フィンガープリント、最終同期記録などの
// プロセス再起動をまたぐ小さなランタイムファクトを保持する。
type BoltStateRepo struct {
	db *DB
}

// NewBoltStateRepo はBoltStateRepoの新しいインスタンスを生成する。
func NewBoltStateRepo(db *DB) *BoltStateRepo {
	return &BoltStateRepo{db: db}
}

// Get は指定キーの値を取得する。見つからない場合は空文字列を返す。
func (r *BoltStateRepo) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", model.NewInvalidRecordError("キーが設定されていません")
	}

	var value string
	err := r.db.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketState).Get([]byte(key))
		if data != nil {
			value = string(data)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("デバイス状態の読み取りに失敗: %w", err)
	}
	return value, nil
}

// Set は指定キーに値を保存する。
func (r *BoltStateRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return model.NewInvalidRecordError("キーが設定されていません")
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), []byte(value))
	})
}
