// Package danmu 实现直播间弹幕网关客户端：连接生命周期、认证、心跳、断线重连与事件分发。
//
// 所有会话状态只在一个事件循环 goroutine 中修改；Client 的方法可以在任意 goroutine 调用，
// 调用被转换为工作项按提交顺序执行。事件通过 Dispatcher 在独立 goroutine 上交给 Sink。
package danmu

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/pkg/config"
	"github.com/qiminjie89/danmu/pkg/logger"
	"github.com/qiminjie89/danmu/pkg/metrics"
	"github.com/qiminjie89/danmu/pkg/transport"
)

// Poster 发送弹幕的外部协作者，与网关连接无关
type Poster interface {
	PostMessage(ctx context.Context, roomID int64, token, text string) error
}

// PosterFunc 函数适配为 Poster
type PosterFunc func(ctx context.Context, roomID int64, token, text string) error

// PostMessage 实现 Poster
func (f PosterFunc) PostMessage(ctx context.Context, roomID int64, token, text string) error {
	return f(ctx, roomID, token, text)
}

// Deps 客户端依赖
type Deps struct {
	Dialer   transport.Dialer
	Provider CredentialProvider
	Poster   Poster // 可为空，此时 Send 返回 ErrNoPoster
	Sink     Sink
}

// Client 弹幕客户端门面
type Client struct {
	loop       *eventLoop
	mgr        *manager
	dispatcher *Dispatcher
	poster     Poster

	closeOnce sync.Once
}

// NewClient 创建客户端并启动事件循环与分发 goroutine
func NewClient(cfg *config.ClientConfig, deps Deps) *Client {
	dispatcher := NewDispatcher(deps.Sink, cfg.Dispatcher.QueueSize, cfg.Dispatcher.EnqueueTimeout)
	loop := newEventLoop()

	c := &Client{
		loop:       loop,
		mgr:        newManager(cfg, deps.Dialer, deps.Provider, dispatcher, loop.post),
		dispatcher: dispatcher,
		poster:     deps.Poster,
	}

	dispatcher.Start()
	go loop.run()

	return c
}

// Connect 连接房间，等待工作项执行完成（旧会话已关闭、新会话开始拨号）。
// 认证结果通过 status 事件通知。
func (c *Client) Connect(ctx context.Context, roomID int64) error {
	return c.loop.do(ctx, func() {
		c.mgr.connect(roomID)
	})
}

// ConnectAsync 提交连接请求后立即返回
func (c *Client) ConnectAsync(roomID int64) error {
	if !c.loop.post(func() { c.mgr.connect(roomID) }) {
		return ErrClientClosed
	}
	return nil
}

// Stop 关闭当前会话并取消待执行的重连，可重复调用
func (c *Client) Stop(ctx context.Context) error {
	return c.loop.do(ctx, c.mgr.stop)
}

// StopAsync 提交停止请求后立即返回
func (c *Client) StopAsync() error {
	if !c.loop.post(c.mgr.stop) {
		return ErrClientClosed
	}
	return nil
}

// Send 通过外部协作者发送弹幕。没有 Live 会话时立即返回 ErrNoActiveSession。
func (c *Client) Send(ctx context.Context, text string) error {
	var (
		roomID int64
		token  string
		live   bool
	)
	if err := c.loop.do(ctx, func() {
		roomID, token, live = c.mgr.liveSession()
	}); err != nil {
		return err
	}
	if !live {
		return ErrNoActiveSession
	}
	if c.poster == nil {
		return ErrNoPoster
	}

	if err := c.poster.PostMessage(ctx, roomID, token, text); err != nil {
		metrics.MessagesPosted.WithLabelValues("error").Inc()
		logger.Warn("post message failed", zap.Int64("room_id", roomID), zap.Error(err))
		return err
	}
	metrics.MessagesPosted.WithLabelValues("ok").Inc()
	return nil
}

// State 当前会话状态
func (c *Client) State() State {
	return c.mgr.currentState()
}

// Close 停止会话、关闭事件循环，并等待已入队事件投递完毕
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.loop.post(c.mgr.stop)
		c.loop.close()
		<-c.loop.done
		c.dispatcher.Close()
	})
	return nil
}
