package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/hitoshi/kioskd/internal/model"
)

// BoltEventRepo はEventRepositoryのbbolt実装。
// バケットのシーケンス番号をビッグエンディアンのキーとして使用するため、
// カーソル走査順がそのまま作成順（古い順）になる。
type BoltEventRepo struct {
	db *DB
}

// NewBoltEventRepo はBoltEventRepoの新しいインスタンスを生成する。
func NewBoltEventRepo(db *DB) *BoltEventRepo {
	return &BoltEventRepo{db: db}
}

// Enqueue はイベントをキューの末尾に追加する。
func (r *BoltEventRepo) Enqueue(ctx context.Context, eventType string, payload []byte) (*model.OfflineEvent, error) {
	if eventType == "" {
		return nil, model.NewInvalidRecordError("イベント種別が設定されていません")
	}

	event := &model.OfflineEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	err := r.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, fmt.Errorf("イベントのエンキューに失敗: %w", err)
	}
	return event, nil
}

// ListPending は未同期イベントを作成順（古い順）で返す。
func (r *BoltEventRepo) ListPending(ctx context.Context) ([]*model.OfflineEvent, error) {
	var events []*model.OfflineEvent
	err := r.db.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event model.OfflineEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
			}
			if !event.Synced {
				events = append(events, &event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkSynced は指定IDのイベント群を同期済みにする。
// サーバーが受理した後にのみ呼び出すこと。イベントは削除されず、同期済みフラグが立つ。
func (r *BoltEventRepo) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	return r.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		c := b.Cursor()
		now := time.Now()

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event model.OfflineEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
			}
			if !idSet[event.ID] || event.Synced {
				continue
			}

			event.Synced = true
			event.SyncedAt = &now
			data, err := json.Marshal(&event)
			if err != nil {
				return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
			}
			updates = append(updates, pending{key: append([]byte(nil), k...), data: data})
		}

		for _, u := range updates {
			if err := b.Put(u.key, u.data); err != nil {
				return err
			}
		}
		return nil
	})
}
