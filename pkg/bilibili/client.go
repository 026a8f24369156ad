// Package bilibili 提供直播间相关的 HTTP 接口：获取弹幕网关凭证、发送弹幕
package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/pkg/logger"
)

// Config HTTP 客户端配置
type Config struct {
	APIBase   string
	Cookie    string // 原始 Cookie 字符串，包含 SESSDATA / bili_jct
	CSRF      string // 为空时从 Cookie 的 bili_jct 中读取
	UserAgent string
	Timeout   time.Duration
}

// Client 直播 HTTP 接口客户端
type Client struct {
	cfg  Config
	http *http.Client
}

// APIError 接口返回非零 code
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api error: code=%d message=%s", e.Code, e.Message)
}

// envelope 接口通用返回结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CSRF == "" {
		cfg.CSRF = CookieValue(cfg.Cookie, "bili_jct")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// do 发送请求并解析通用返回结构
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("bilibili api request failed",
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%s: http status %d", req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", req.URL.Path, err)
	}
	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = env.Msg
		}
		return nil, &APIError{Code: env.Code, Message: msg}
	}
	return env.Data, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.APIBase, "/") + path
}

// newRequest 创建带 context 的请求
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.url(path), body)
}

// CookieValue 从 Cookie 字符串中取出指定字段
func CookieValue(cookie, name string) string {
	for _, part := range strings.Split(cookie, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == name {
			return v
		}
	}
	return ""
}
