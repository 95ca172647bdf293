// Package control はコントロールプレーンAPIのクライアントを提供する。
// コンテンツ解決、ハートビート、リフレッシュフラグ、コマンドポーリング、
// オフラインイベント送信の各呼び出しを含む。
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/kioskd/internal/model"
)

// Client はコントロールプレーンAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にベースURLを差し替え可能
	userAgent  string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, playerVersion string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		userAgent:  fmt.Sprintf("Kioskd/%s Signage Player", playerVersion),
	}
}

// ResolveContent は指定デバイスの解決済みコンテンツを取得する。
// レスポンスは閉じたスキーマにデコードし、ネットワーク境界で検証する。
func (c *Client) ResolveContent(ctx context.Context, deviceID string) (*model.ResolvedContent, error) {
	var content model.ResolvedContent
	path := fmt.Sprintf("/api/devices/%s/content", url.PathEscape(deviceID))
	if err := c.get(ctx, path, &content); err != nil {
		return nil, err
	}
	if err := content.Validate(); err != nil {
		c.logger.Error("解決済みコンテンツの検証に失敗しました",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return &content, nil
}

// heartbeatRequest はハートビート呼び出しのリクエストボディ。
type heartbeatRequest struct {
	DeviceID           string `json:"device_id"`
	PlayerVersion      string `json:"player_version"`
	ContentFingerprint string `json:"content_fingerprint"`
}

// SendHeartbeat はデバイスのヘルス情報を送信し、サーバー指示を返す。
func (c *Client) SendHeartbeat(ctx context.Context, deviceID, playerVersion, fingerprint string) (*model.HeartbeatDirectives, error) {
	req := heartbeatRequest{
		DeviceID:           deviceID,
		PlayerVersion:      playerVersion,
		ContentFingerprint: fingerprint,
	}
	var directives model.HeartbeatDirectives
	if err := c.post(ctx, "/api/heartbeat", req, &directives); err != nil {
		return nil, err
	}
	return &directives, nil
}

// refreshFlagResponse はリフレッシュフラグ確認のレスポンスボディ。
type refreshFlagResponse struct {
	NeedsRefresh bool `json:"needs_refresh"`
}

// CheckRefreshFlag は強制リフレッシュフラグが立っているかを確認する。
func (c *Client) CheckRefreshFlag(ctx context.Context, deviceID string) (bool, error) {
	var resp refreshFlagResponse
	path := fmt.Sprintf("/api/devices/%s/refresh", url.PathEscape(deviceID))
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.NeedsRefresh, nil
}

// clearRefreshRequest はリフレッシュフラグクリアのリクエストボディ。
type clearRefreshRequest struct {
	NewFingerprint string `json:"new_fingerprint"`
}

// ClearRefreshFlag はリフレッシュフラグをクリアし、新しいフィンガープリントを
// エコーバックしてサーバーが受信を確認できるようにする。
func (c *Client) ClearRefreshFlag(ctx context.Context, deviceID, newFingerprint string) error {
	path := fmt.Sprintf("/api/devices/%s/refresh/clear", url.PathEscape(deviceID))
	return c.post(ctx, path, clearRefreshRequest{NewFingerprint: newFingerprint}, nil)
}

// commandResponse はコマンドポーリングのレスポンスボディ。
type commandResponse struct {
	Command *model.DeviceCommand `json:"command"`
}

// NextCommand はこのデバイス宛ての次の保留中コマンドを取得する。
// 保留中のコマンドがない場合はnilを返す。
func (c *Client) NextCommand(ctx context.Context, deviceID string) (*model.DeviceCommand, error) {
	var resp commandResponse
	path := fmt.Sprintf("/api/devices/%s/commands/next", url.PathEscape(deviceID))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Command, nil
}

// ReportCommandResult はコマンド実行結果をコントロールプレーンへ報告する。
func (c *Client) ReportCommandResult(ctx context.Context, deviceID string, result *model.CommandResult) error {
	path := fmt.Sprintf("/api/devices/%s/commands/result", url.PathEscape(deviceID))
	return c.post(ctx, path, result, nil)
}

// pushEventsRequest はオフラインイベント送信のリクエストボディ。
type pushEventsRequest struct {
	DeviceID string                `json:"device_id"`
	Events   []*model.OfflineEvent `json:"events"`
}

// PushEvents はオフラインイベントをコントロールプレーンへ送信する。
// 呼び出し元はエラーなしの返却後にのみイベントを同期済みにすること。
func (c *Client) PushEvents(ctx context.Context, deviceID string, events []*model.OfflineEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.post(ctx, "/api/events", pushEventsRequest{DeviceID: deviceID, Events: events}, nil)
}

// get はGETリクエストを実行し、レスポンスJSONをdestへデコードする。
func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	return c.do(req, path, dest)
}

// post はJSONボディ付きのPOSTリクエストを実行する。destがnilの場合はボディを読み捨てる。
func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディのシリアライズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, dest)
}

// do はリクエストを実行し、ステータスチェックとJSONデコードを行う。
func (c *Client) do(req *http.Request, path string, dest interface{}) error {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("コントロールプレーン呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("コントロールプレーンがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewControlPlaneError(path, resp.StatusCode)
	}

	if dest == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		c.logger.Error("コントロールプレーンのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
