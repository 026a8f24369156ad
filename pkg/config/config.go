// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig 弹幕客户端配置
type ClientConfig struct {
	RoomID     int64            `yaml:"room_id"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Retry      RetryConfig      `yaml:"retry"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Bilibili   BilibiliConfig   `yaml:"bilibili"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// GatewayConfig 网关连接配置
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AuthTimeout       time.Duration `yaml:"auth_timeout"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	UserAgent         string        `yaml:"user_agent"`
	Origin            string        `yaml:"origin"`
}

// RetryConfig 断线重连退避配置
type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Jitter    float64       `yaml:"jitter"` // 随机抖动占当前退避的比例
}

// DispatcherConfig 事件分发配置
type DispatcherConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

// BilibiliConfig 账号与 HTTP 接口配置
type BilibiliConfig struct {
	APIBase   string           `yaml:"api_base"`
	Cookie    string           `yaml:"cookie"`
	CSRF      string           `yaml:"csrf"`
	UID       int64            `yaml:"uid"`
	Buvid     string           `yaml:"buvid"`
	Endpoints []EndpointConfig `yaml:"endpoints"` // 非空时跳过 getDanmuInfo 返回的地址
}

// EndpointConfig 网关地址
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	Encoding     string        `yaml:"encoding"` // json, msgpack
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// 默认值
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultAuthTimeout       = 10 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultJitter            = 0.2
	DefaultQueueSize         = 1024
	DefaultEnqueueTimeout    = 2 * time.Second
	DefaultAPIBase           = "https://api.live.bilibili.com"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultOrigin            = "https://live.bilibili.com"
)

// Default 返回全部使用默认值的配置
func Default() *ClientConfig {
	cfg := &ClientConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为零值字段填充默认值
func (c *ClientConfig) ApplyDefaults() {
	g := &c.Gateway
	if g.HeartbeatInterval <= 0 {
		g.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if g.AuthTimeout <= 0 {
		g.AuthTimeout = DefaultAuthTimeout
	}
	if g.DialTimeout <= 0 {
		g.DialTimeout = DefaultDialTimeout
	}
	if g.WriteTimeout <= 0 {
		g.WriteTimeout = DefaultWriteTimeout
	}
	if g.UserAgent == "" {
		g.UserAgent = DefaultUserAgent
	}
	if g.Origin == "" {
		g.Origin = DefaultOrigin
	}

	r := &c.Retry
	if r.BaseDelay <= 0 {
		r.BaseDelay = DefaultBaseDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultMaxDelay
	}
	if r.MaxDelay < r.BaseDelay {
		r.MaxDelay = r.BaseDelay
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}

	d := &c.Dispatcher
	if d.QueueSize <= 0 {
		d.QueueSize = DefaultQueueSize
	}
	if d.EnqueueTimeout <= 0 {
		d.EnqueueTimeout = DefaultEnqueueTimeout
	}

	if c.Bilibili.APIBase == "" {
		c.Bilibili.APIBase = DefaultAPIBase
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "danmu-events"
	}
	if c.Kafka.Encoding == "" {
		c.Kafka.Encoding = "json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

// Validate 检查配置中无法用默认值修正的错误
func (c *ClientConfig) Validate() error {
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	if c.Kafka.Encoding != "json" && c.Kafka.Encoding != "msgpack" {
		return fmt.Errorf("unknown kafka encoding %q", c.Kafka.Encoding)
	}
	for i, ep := range c.Bilibili.Endpoints {
		if ep.Host == "" || ep.Port <= 0 {
			return fmt.Errorf("endpoint %d: host and port are required", i)
		}
	}
	return nil
}

// LoadClientConfig 加载客户端配置
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
