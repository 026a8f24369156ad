package danmu

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/pkg/logger"
	"github.com/qiminjie89/danmu/pkg/metrics"
)

// Sink 事件消费者。OnEvent 在分发 goroutine 上串行调用，不会与自身并发。
type Sink interface {
	OnEvent(ev Event)
}

// SinkFunc 函数适配为 Sink
type SinkFunc func(ev Event)

// OnEvent 实现 Sink
func (f SinkFunc) OnEvent(ev Event) {
	f(ev)
}

// Dispatcher 通过有界队列把事件交给 Sink，保持入队顺序。
// 队列满时阻塞入队，超过 timeout 记为 sink 卡顿并丢弃该事件。
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration

	stopCh    chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(sink Sink, queueSize int, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, queueSize),
		timeout: timeout,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 启动投递 goroutine
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Dispatch 入队一个事件
func (d *Dispatcher) Dispatch(ev Event) error {
	select {
	case <-d.stopCh:
		return ErrClientClosed
	default:
	}

	select {
	case d.queue <- ev:
		return nil
	default:
	}

	metrics.DispatchQueueUsage.Observe(d.QueueUsage())

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case d.queue <- ev:
		return nil
	case <-d.stopCh:
		return ErrClientClosed
	case <-timer.C:
		metrics.SinkStalls.Inc()
		logger.Warn("event sink stalled, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("room_id", ev.RoomID),
			zap.Duration("timeout", d.timeout),
		)
		return ErrSinkStall
	}
}

// QueueUsage 返回队列使用率
func (d *Dispatcher) QueueUsage() float64 {
	return float64(len(d.queue)) / float64(cap(d.queue))
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stopCh:
			// 投递已入队的事件
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver 调用 Sink，sink 的 panic 不会传播
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink panicked",
				zap.String("kind", string(ev.Kind)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	d.sink.OnEvent(ev)
	metrics.EventsDispatched.WithLabelValues(string(ev.Kind)).Inc()
}

// Close 停止接收事件，等待已入队事件投递完毕
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.Start()
	<-d.done
}
