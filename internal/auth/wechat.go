package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultWeChatAPIBase = "https://api.weixin.qq.com"
	jscode2sessionPath   = "/sns/jscode2session"

	// defaultExchangeErrorMessage はIdPがerrmsgを返さなかった場合のメッセージ。
	defaultExchangeErrorMessage = "WeChat API call failed"
)

// WeChatConfig はWeChatミニプログラムのコード交換クライアントの設定。
type WeChatConfig struct {
	AppID     string
	AppSecret string

	// テスト用にオーバーライド可能なベースURL
	APIBase string
	// Timeout は1回の交換リクエストの上限。0の場合は制限しない。
	Timeout time.Duration
}

// ExchangeResult はコード交換で得られた識別情報。
type ExchangeResult struct {
	ExternalID string // openid
	UnionID    string
	SessionKey string // ログやレスポンスに含めてはならない
}

// ProviderError はIdPがエラーコードを返した場合のエラー。
// Messageはクライアントにそのまま返す。
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error %d: %s", e.Code, e.Message)
}

// WeChatClient はjscode2sessionエンドポイントでログインコードを交換する。
type WeChatClient struct {
	config     WeChatConfig
	httpClient *http.Client
}

// NewWeChatClient はWeChatClientを生成する。
func NewWeChatClient(config WeChatConfig) *WeChatClient {
	if config.APIBase == "" {
		config.APIBase = defaultWeChatAPIBase
	}
	config.APIBase = strings.TrimRight(config.APIBase, "/")
	return &WeChatClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// jscode2sessionResponse はjscode2sessionのレスポンス。
// 成功時もContent-Typeがtext/plainで返ることがある。
type jscode2sessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// Exchange はログインコードをopenidとsession_keyに交換する。
// IdPがエラーコードを返した場合は*ProviderErrorを返す。
func (c *WeChatClient) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	params := url.Values{
		"appid":      {c.config.AppID},
		"secret":     {c.config.AppSecret},
		"js_code":    {code},
		"grant_type": {"authorization_code"},
	}
	endpoint := c.config.APIBase + jscode2sessionPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange failed with status %d", resp.StatusCode)
	}

	var data jscode2sessionResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse exchange response: %w", err)
	}

	if data.ErrCode != 0 {
		msg := data.ErrMsg
		if msg == "" {
			msg = defaultExchangeErrorMessage
		}
		return nil, &ProviderError{Code: data.ErrCode, Message: msg}
	}

	if data.OpenID == "" {
		return nil, fmt.Errorf("empty openid in exchange response")
	}

	return &ExchangeResult{
		ExternalID: data.OpenID,
		UnionID:    data.UnionID,
		SessionKey: data.SessionKey,
	}, nil
}

// compile-time interface check
var _ CodeExchanger = (*WeChatClient)(nil)
