// Package identity はプロセス再起動をまたいで保持されるデバイス識別情報のストアを提供する。
// アンビエントなグローバル状態ではなく注入可能なインターフェースとして定義し、
// テストでフェイクに差し替えられるようにする。
package identity

import (
	"context"

	"github.com/hitoshi/kioskd/internal/repository"
)

// デバイス状態ストア上のキー
const (
	keyDeviceID        = "device_id"
	keyLastFingerprint = "last_fingerprint"
)

// Store はデバイス識別情報の取得・保存インターフェース。
type Store interface {
	// DeviceID は永続化されたデバイスIDを返す。未設定の場合は空文字列を返す。
	DeviceID(ctx context.Context) (string, error)
	// SetDeviceID はデバイスIDを永続化する。
	SetDeviceID(ctx context.Context, id string) error
	// LastFingerprint は最後にレンダリングされたコンテンツのフィンガープリントを返す。
	LastFingerprint(ctx context.Context) (string, error)
	// SetLastFingerprint は最後にレンダリングされたフィンガープリントを永続化する。
	SetLastFingerprint(ctx context.Context, fingerprint string) error
}

// stateStore はStateRepositoryを土台としたStoreの実装。
type stateStore struct {
	state repository.StateRepository
}

// NewStore はStateRepositoryを土台とするStoreを生成する。
func NewStore(state repository.StateRepository) Store {
	return &stateStore{state: state}
}

func (s *stateStore) DeviceID(ctx context.Context) (string, error) {
	return s.state.Get(ctx, keyDeviceID)
}

func (s *stateStore) SetDeviceID(ctx context.Context, id string) error {
	return s.state.Set(ctx, keyDeviceID, id)
}

func (s *stateStore) LastFingerprint(ctx context.Context) (string, error) {
	return s.state.Get(ctx, keyLastFingerprint)
}

func (s *stateStore) SetLastFingerprint(ctx context.Context, fingerprint string) error {
	return s.state.Set(ctx, keyLastFingerprint, fingerprint)
}
