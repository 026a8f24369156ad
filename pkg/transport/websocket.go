package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header // User-Agent / Origin / Cookie
}

// WebSocketDialer WebSocket 客户端拨号器
type WebSocketDialer struct {
	dialer       websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
}

// NewWebSocketDialer 创建 WebSocket 拨号器
func NewWebSocketDialer(cfg WebSocketConfig) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		header:       cfg.Header,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Dial 连接网关
func (d *WebSocketDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, ep.URL(), d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", ep, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", ep, err)
	}

	return &WebSocketConn{
		conn:         conn,
		writeTimeout: d.writeTimeout,
	}, nil
}

// WebSocketConn WebSocket 连接实现
type WebSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// ReadMessage 读取一条消息，ping/pong/close 控制帧由 gorilla 内部处理
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteMessage 写入一条二进制消息
func (c *WebSocketConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close 关闭连接
func (c *WebSocketConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr 返回远程地址
func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Underlying 返回底层 websocket.Conn
func (c *WebSocketConn) Underlying() *websocket.Conn {
	return c.conn
}
