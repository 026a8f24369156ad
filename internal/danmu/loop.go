package danmu

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// eventLoop 单线程事件循环。任意 goroutine 通过 post 提交工作项，按提交顺序执行。
// 队列不设上限，post 永不阻塞。
type eventLoop struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		items:  queue.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// post 提交工作项，循环已关闭时返回 false
func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.items.Add(fn)
	l.mu.Unlock()

	l.wake()
	return true
}

// do 提交工作项并等待执行完成。不能在循环内部调用。
func (l *eventLoop) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClientClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *eventLoop) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// run 执行工作项直到 close 且队列清空
func (l *eventLoop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for l.items.Length() == 0 {
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.notify
			l.mu.Lock()
		}
		fn := l.items.Remove().(func())
		l.mu.Unlock()

		fn()
	}
}

// close 停止接收新工作项，已提交的仍会执行
func (l *eventLoop) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wake()
}
