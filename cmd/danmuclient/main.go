package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/pkg/config"
	"github.com/qiminjie89/danmu/pkg/logger"
)

// 全局参数
type options struct {
	configPath string
	roomID     int64
	logLevel   string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "danmuclient",
		Short: "Live room danmu gateway client",
		Long: `danmuclient connects to a live room's danmu gateway, prints decoded
events and optionally forwards them to Kafka.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().Int64VarP(&opts.roomID, "room", "r", 0, "room id, overrides config")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides config")

	rootCmd.AddCommand(
		listenCmd(opts),
		sendCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志
func setup(opts *options) (*config.ClientConfig, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadClientConfig(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if opts.roomID != 0 {
		cfg.RoomID = opts.roomID
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if cfg.RoomID <= 0 {
		return nil, fmt.Errorf("room id is required (--room or room_id in config)")
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("config loaded",
		zap.String("config", opts.configPath),
		zap.Int64("room_id", cfg.RoomID),
	)
	return cfg, nil
}
