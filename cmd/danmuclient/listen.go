package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/monitor"
	"github.com/qiminjie89/danmu/internal/sink"
	"github.com/qiminjie89/danmu/pkg/config"
	"github.com/qiminjie89/danmu/pkg/kafka"
	"github.com/qiminjie89/danmu/pkg/logger"
)

func listenCmd(opts *options) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to a room and print events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runListen(cmd.Context(), cfg, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print unrecognized commands and popularity")

	return cmd
}

// buildSinks 终端输出 + 日志，Kafka 按配置启用
func buildSinks(cfg *config.ClientConfig, verbose bool) (sink.Multi, []io.Closer) {
	sinks := sink.Multi{
		sink.NewConsoleSink(os.Stdout, verbose),
		sink.NewLogSink(logger.L().WithOptions(zap.AddCallerSkip(-1))),
	}

	var closers []io.Closer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(&kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		ks := sink.NewKafkaSink(producer, cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout,
			sink.WithEncoding(sink.Encoding(cfg.Kafka.Encoding)))
		sinks = append(sinks, ks)
		closers = append(closers, ks)

		logger.Info("forwarding events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("encoding", cfg.Kafka.Encoding),
		)
	}
	return sinks, closers
}

func runListen(ctx context.Context, cfg *config.ClientConfig, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sinks, closers := buildSinks(cfg, verbose)
	client := newClient(cfg, sinks)

	var health *monitor.Server
	if cfg.Metrics.Enabled {
		health = monitor.NewServer(cfg.Metrics.Addr, cfg.RoomID, client.State)
		health.Start()
	}

	if err := client.Connect(ctx, cfg.RoomID); err != nil {
		client.Close()
		return err
	}

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("stop client failed", zap.Error(err))
	}
	client.Close()

	if health != nil {
		health.Stop(shutdownCtx)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("close sink failed", zap.Error(err))
		}
	}
	return nil
}
