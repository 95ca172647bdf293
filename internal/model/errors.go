package model

import "fmt"

// PlayerError はエンジン内部の統一エラーフォーマットを表す。
// 原因カテゴリを含み、ログとコマンド結果報告に使用する。
type PlayerError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, network, cache, system
}

// Error はerrorインターフェースを実装する。
func (e *PlayerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidContent   = "INVALID_CONTENT"
	ErrCodeInvalidRecord    = "INVALID_RECORD"
	ErrCodeContentNotCached = "CONTENT_NOT_CACHED"
	ErrCodeMediaNotCached   = "MEDIA_NOT_CACHED"
	ErrCodeControlPlane     = "CONTROL_PLANE_ERROR"
	ErrCodeUnknownCommand   = "UNKNOWN_COMMAND"
)

// NewInvalidContentError はネットワーク境界でのコンテンツ検証エラーを生成する。
func NewInvalidContentError(reason string) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeInvalidContent,
		Message:  fmt.Sprintf("コンテンツの検証に失敗しました: %s", reason),
		Category: "validation",
	}
}

// NewInvalidRecordError はキャッシュ境界での不正な書き込みエラーを生成する。
// 必須の識別フィールドが欠けたレコードは書き込まれずに拒否される。
func NewInvalidRecordError(reason string) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("不正なキャッシュレコードです: %s", reason),
		Category: "cache",
	}
}

// NewContentNotCachedError はキャッシュにコンテンツが存在しないことを表すエラーを生成する。
func NewContentNotCachedError(id string) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeContentNotCached,
		Message:  fmt.Sprintf("キャッシュにコンテンツが存在しません: %s", id),
		Category: "cache",
	}
}

// NewMediaNotCachedError はキャッシュにメディアが存在しないことを表すエラーを生成する。
func NewMediaNotCachedError(url string) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeMediaNotCached,
		Message:  fmt.Sprintf("キャッシュにメディアが存在しません: %s", url),
		Category: "cache",
	}
}

// NewControlPlaneError はコントロールプレーン呼び出しの失敗を表すエラーを生成する。
func NewControlPlaneError(operation string, status int) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeControlPlane,
		Message:  fmt.Sprintf("コントロールプレーン呼び出し %s がステータス %d を返しました", operation, status),
		Category: "network",
	}
}

// NewUnknownCommandError は未知のコマンド種別を表すエラーを生成する。
func NewUnknownCommandError(cmdType string) *PlayerError {
	return &PlayerError{
		Code:     ErrCodeUnknownCommand,
		Message:  fmt.Sprintf("未知のコマンド種別です: %s", cmdType),
		Category: "validation",
	}
}
