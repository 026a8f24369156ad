package sink

import (
	"context"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/kafka"
	"github.com/qiminjie89/danmu/pkg/logger"
)

const (
	defaultBatchSize    = 100
	defaultFlushTimeout = time.Second
	sendTimeout         = 5 * time.Second
)

// KafkaSink 把消息事件转发到 Kafka。key 为房间号，同一房间的事件进入同一分区。
// OnEvent 只缓存并通知 flushLoop，写入只在 flushLoop 中进行，批次按缓存顺序写出。
type KafkaSink struct {
	producer  *kafka.Producer
	batchSize int
	kinds     map[danmu.Kind]bool
	encoding  Encoding

	mu      sync.Mutex
	pending []kafkago.Message

	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// KafkaOption 配置 KafkaSink
type KafkaOption func(*KafkaSink)

// WithKinds 指定要转发的事件类型，默认只转发网关消息
func WithKinds(kinds ...danmu.Kind) KafkaOption {
	return func(s *KafkaSink) {
		s.kinds = make(map[danmu.Kind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
}

// WithEncoding 指定记录编码，默认 JSON
func WithEncoding(enc Encoding) KafkaOption {
	return func(s *KafkaSink) {
		s.encoding = enc
	}
}

// NewKafkaSink 创建 KafkaSink 并启动定时 flush
func NewKafkaSink(producer *kafka.Producer, batchSize int, flushInterval time.Duration, opts ...KafkaOption) *KafkaSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushTimeout
	}

	s := &KafkaSink{
		producer:  producer,
		batchSize: batchSize,
		encoding:  EncodingJSON,
		flushCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.flushLoop(flushInterval)
	return s
}

// OnEvent 实现 danmu.Sink
func (s *KafkaSink) OnEvent(ev danmu.Event) {
	if !s.accept(ev.Kind) {
		return
	}

	value, err := encodeRecord(ev, s.encoding)
	if err != nil {
		logger.Warn("encode kafka record failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, kafkago.Message{
		Key:   []byte(strconv.FormatInt(ev.RoomID, 10)),
		Value: value,
		Time:  ev.ReceivedAt,
	})
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

func (s *KafkaSink) accept(k danmu.Kind) bool {
	if s.kinds == nil {
		return isMessage(k)
	}
	return s.kinds[k]
}

func (s *KafkaSink) flushLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.flushCh:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

// flush 写出缓存的消息，失败时丢弃该批次
func (s *KafkaSink) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := s.producer.SendBatch(ctx, batch); err != nil {
		logger.Warn("drop kafka batch", zap.Int("count", len(batch)), zap.Error(err))
	}
}

// Close 写出剩余消息并关闭生产者
func (s *KafkaSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		<-s.done
		err = s.producer.Close()
	})
	return err
}
