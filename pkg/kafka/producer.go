// Package kafka 提供 Kafka 客户端封装
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/pkg/logger"
)

// ProducerConfig Kafka 生产者配置
type ProducerConfig struct {
	Brokers      []string      // Kafka broker 地址
	Topic        string        // 目标 topic
	BatchSize    int           // 0 使用 kafka-go 默认值
	BatchTimeout time.Duration // 0 使用 kafka-go 默认值
}

// Writer 抽象 kafka.Writer，便于测试替换
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer Kafka 生产者
type Producer struct {
	cfg    *ProducerConfig
	writer Writer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *ProducerConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // 同一房间的消息进入同一分区，保持顺序
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}

	return NewProducerWithWriter(cfg, writer)
}

// NewProducerWithWriter 使用指定 Writer 创建生产者
func NewProducerWithWriter(cfg *ProducerConfig, w Writer) *Producer {
	return &Producer{
		cfg:    cfg,
		writer: w,
	}
}

// SendBatch 批量发送消息
func (p *Producer) SendBatch(ctx context.Context, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		logger.Error("kafka batch send failed",
			zap.Error(err),
			zap.String("topic", p.cfg.Topic),
			zap.Int("count", len(messages)),
		)
		return err
	}
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
