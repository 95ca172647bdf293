// Package connection は接続状態マシンとリトライバックオフ戦略を提供する。
// 3つのポーリングループが共有する唯一の可変状態であり、
// レンダラからの並行読み取りに対してミューテックスで保護される。
package connection

import (
	"sync"
	"time"
)

// State はデバイスの接続状態を表す。
type State string

const (
	// StateConnecting は初期状態。まだ一度もコンテンツ取得に成功していない。
	StateConnecting State = "connecting"
	// StateConnected はコンテンツ取得が成功している状態。
	StateConnected State = "connected"
	// StateOffline は取得に失敗したがキャッシュからコンテンツを配信している状態。
	StateOffline State = "offline"
	// StateReconnecting は連続失敗が閾値に達し、復旧を試行している状態。
	StateReconnecting State = "reconnecting"
)

const (
	// reconnectThreshold はReconnectingへ遷移する連続失敗回数の閾値。
	// 一時的な瞬断と持続的な障害のフラッピングを防ぐ。
	reconnectThreshold = 3

	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 5 * time.Second
	// freshDeviceBackoff はキャッシュが一度も作られていないデバイスの初回遅延。
	// 表示できるものが何もないため、通常より積極的にリトライする。
	freshDeviceBackoff = 2 * time.Second
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 5 * time.Minute
)

// Snapshot は接続状態の読み取り専用スナップショット。
// レンダラと管理用エンドポイントが参照する。
type Snapshot struct {
	State             State
	ConsecutiveErrors int
	LastSuccessAt     time.Time
	LastFailureAt     time.Time
}

// Tracker は接続状態と連続エラーカウンタを保持する状態マシン。
// 全メソッドは並行呼び出しに対して安全。終端の失敗状態は存在せず、
// 失敗が続く限りOffline/Reconnectingのまま永久にリトライする。
type Tracker struct {
	mu                sync.RWMutex
	state             State
	consecutiveErrors int
	lastSuccessAt     time.Time
	lastFailureAt     time.Time
}

// NewTracker は初期状態Connectingの新しいTrackerを生成する。
func NewTracker() *Tracker {
	return &Tracker{state: StateConnecting}
}

// RecordSuccess はコンテンツ取得成功を記録する。
// どの状態からでもConnectedへ遷移し、連続エラーカウンタを0にリセットする。
// 遷移後の状態を返す。
func (t *Tracker) RecordSuccess() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateConnected
	t.consecutiveErrors = 0
	t.lastSuccessAt = time.Now()
	return t.state
}

// RecordFailure はコンテンツ取得失敗を記録し、遷移後の状態を返す。
// hasCacheは配信可能なキャッシュエントリが存在するかを示す。
//   - Connected → Offline: キャッシュが存在する場合のみ。
//   - 連続失敗が閾値に達した場合はキャッシュの有無にかかわらずReconnectingへ遷移する。
//   - Connecting中（初回取得前）でキャッシュがない場合はConnectingのまま維持する。
func (t *Tracker) RecordFailure(hasCache bool) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveErrors++
	t.lastFailureAt = time.Now()

	if t.consecutiveErrors >= reconnectThreshold {
		t.state = StateReconnecting
		return t.state
	}

	switch t.state {
	case StateConnected:
		if hasCache {
			t.state = StateOffline
		}
	case StateConnecting:
		if hasCache {
			t.state = StateOffline
		}
		// キャッシュなしの初回失敗: Connectingのまま積極的にリトライする
	}
	return t.state
}

// Snapshot は現在の状態の読み取り専用コピーを返す。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		State:             t.state,
		ConsecutiveErrors: t.consecutiveErrors,
		LastSuccessAt:     t.lastSuccessAt,
		LastFailureAt:     t.lastFailureAt,
	}
}

// State は現在の状態を返す。
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ConsecutiveErrors は現在の連続エラー回数を返す。
func (t *Tracker) ConsecutiveErrors() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutiveErrors
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回5秒、2倍ずつ増加、最大5分。attemptsが0以下の場合は初回遅延を返す。
// hasCacheがfalse（表示できるコンテンツが何もない）の場合は、
// より短い初回遅延から開始して積極的にリトライする。
func CalculateBackoff(attempts int, hasCache bool) time.Duration {
	delay := initialBackoff
	if !hasCache {
		delay = freshDeviceBackoff
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
