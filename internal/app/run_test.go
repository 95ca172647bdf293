package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// TestRun_PurgeCommand_Succeeds はpurgeコマンドがキャッシュを開いてパージを実行することを検証する。
// 空のキャッシュに対してもエラーなく完了する。
func TestRun_PurgeCommand_Succeeds(t *testing.T) {
	setTestEnv(t)
	t.Setenv("CACHE_DIR", t.TempDir())

	var buf bytes.Buffer
	if err := Run(&buf, []string{"purge"}); err != nil {
		t.Fatalf("Run(purge) returned error: %v", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("CONTROL_PLANE_URL", "")
	t.Setenv("DEVICE_ID", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"purge"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_HealthcheckCommand はhealthcheckサブコマンドが管理サーバーの
// /health エンドポイントを叩くことを検証する。
func TestRun_HealthcheckCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("リクエストパス = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("テストサーバーのURL解析に失敗: %v", err)
	}
	t.Setenv("ADMIN_PORT", u.Port())

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err != nil {
		t.Fatalf("Run(healthcheck) returned error: %v", err)
	}
}

func TestRun_HealthcheckCommand_UnhealthyReturnsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("テストサーバーのURL解析に失敗: %v", err)
	}
	t.Setenv("ADMIN_PORT", u.Port())

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err == nil {
		t.Fatal("非200レスポンスに対してエラーが返るべき")
	}
}

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTROL_PLANE_URL", "https://control.example.com")
	t.Setenv("DEVICE_ID", "kiosk-042")
}
