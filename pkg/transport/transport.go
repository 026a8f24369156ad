// Package transport 提供传输层抽象，当前实现为 WebSocket 客户端
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Endpoint 网关地址
type Endpoint struct {
	Host     string
	Port     int
	Path     string // 默认 /sub
	Insecure bool   // true 时使用 ws://
}

// URL 返回 WebSocket 地址
func (e Endpoint) URL() string {
	scheme := "wss"
	if e.Insecure {
		scheme = "ws"
	}
	path := e.Path
	if path == "" {
		path = "/sub"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   path,
	}
	return u.String()
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Dialer 建立到网关的连接
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// Conn 连接接口，按消息读写；一条消息内可能包含多个帧，也可能只有半个帧
type Conn interface {
	// ReadMessage 阻塞读取下一条消息
	ReadMessage() ([]byte, error)
	// WriteMessage 写入一条消息，同一时间只允许一个写者
	WriteMessage(data []byte) error
	// Close 关闭连接，阻塞中的 ReadMessage 会返回错误
	Close() error
	// RemoteAddr 返回远程地址
	RemoteAddr() string
}
