package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// バケット名
var (
	bucketScenes     = []byte("scenes")
	bucketMedia      = []byte("media")
	bucketMediaOwner = []byte("media_owner")
	bucketState      = []byte("device_state")
	bucketEvents     = []byte("offline_events")
)

// ownerKeySep は所有者インデックスキーの区切りバイト。
// IDにもURLにも出現しない0x00を使用する。
const ownerKeySep = byte(0)

// DB はbboltベースのローカル永続キャッシュ。
// 全論理ストアが単一のDBファイルを共有する。読み取りは並行実行でき、
// 書き込みはbboltのトランザクションにより論理ストアをまたいで直列化される。
type DB struct {
	bolt *bolt.DB
}

// Open は指定ディレクトリにキャッシュDBを開く。
// ディレクトリと全バケットは存在しなければ作成される（マイグレーション相当）。
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("キャッシュディレクトリの作成に失敗: %w", err)
	}

	path := filepath.Join(dir, "kioskd.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("キャッシュDBのオープンに失敗: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketScenes, bucketMedia, bucketMediaOwner, bucketState, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("バケットの作成に失敗: %w", err)
	}

	return &DB{bolt: db}, nil
}

// Close はキャッシュDBを閉じる。
func (d *DB) Close() error {
	return d.bolt.Close()
}

// ownerKey は所有者インデックスのキーを組み立てる。
// 形式: <ownerContentID> 0x00 <url>
func ownerKey(ownerID, url string) []byte {
	key := make([]byte, 0, len(ownerID)+1+len(url))
	key = append(key, ownerID...)
	key = append(key, ownerKeySep)
	key = append(key, url...)
	return key
}

// ownerPrefix は指定所有者のインデックスエントリを走査するためのプレフィックスを返す。
func ownerPrefix(ownerID string) []byte {
	prefix := make([]byte, 0, len(ownerID)+1)
	prefix = append(prefix, ownerID...)
	prefix = append(prefix, ownerKeySep)
	return prefix
}
