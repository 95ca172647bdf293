// Package security はプレイヤーのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// メディアURLはコントロールプレーン経由で外部から与えられるため、
// デバイスをプライベートネットワークへの踏み台にしないよう
// ダウンロード前とダウンロード時の両方で検証する。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされる。
	// DNS再バインディング攻撃への対策も有効化される。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はURLの安全性を事前に検証する。
	// スキーム、ホスト、IPアドレスの検証を行い、危険なURLの場合はエラーを返す。
	ValidateURL(rawURL string) error
}

// mediaURLSchemes はメディアダウンロードで許可されるURLスキーム。
var mediaURLSchemes = []string{"http", "https"}

// deniedHosts は名前解決を待たずに拒否するホスト名。
var deniedHosts = []string{"localhost"}

// deniedRanges はメディアURLとして到達を許さないネットワーク範囲。
// キオスクは店舗LANに置かれるため、RFC 1918の各レンジに加えて
// ループバック、リンクローカル（クラウドメタデータIPを含む）、
// IPv6の同等レンジを静的に拒否する。
// safeurl側はDNS解決後のIPをDialerレベルで再検証するため、
// ここを通過した名前がプライベートIPに解決されても接続は成立しない。
var deniedRanges = mustParseCIDRs(
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"127.0.0.0/8",    // ループバック
	"169.254.0.0/16", // リンクローカル（169.254.169.254を含む）
	"0.0.0.0/8",      // カレントネットワーク
	"::1/128",        // IPv6ループバック
	"fe80::/10",      // IPv6リンクローカル
	"fc00::/7",       // IPv6ユニークローカル
)

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	nets := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in deniedRanges: %s: %v", cidr, err))
		}
		nets = append(nets, *network)
	}
	return nets
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により、プライベートIP・ループバック・
// リンクローカル・メタデータIPへの接続がブロックされる。
// 検証はnet.DialerのControlフックでDNS解決後のIPに対して行われるため、
// DNS再バインディング攻撃にも対応している。
// メディア配信CDNは標準ポートのみを使うため、許可ポートは80と443に固定する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(mediaURLSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はメディアURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証であり、ダウンローダーがHTTPリクエストを
// 送信する前の一次チェックとして使用する。名前がプライベートIPに解決される
// ケースはNewSafeClientのDialer検証側で防止される。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !schemeAllowed(parsed.Scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", parsed.Scheme, mediaURLSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// IPリテラルは拒否レンジと照合し、ホスト名は拒否リストと照合する
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range deniedRanges {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	for _, denied := range deniedHosts {
		if strings.EqualFold(host, denied) {
			return fmt.Errorf("blocked host: %s", host)
		}
	}

	return nil
}

func schemeAllowed(scheme string) bool {
	for _, allowed := range mediaURLSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
