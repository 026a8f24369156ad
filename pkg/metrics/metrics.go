// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 帧指标
var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_frames_received_total",
		Help: "Total frames decoded from the gateway, after decompression",
	}, []string{"operation"})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_frames_sent_total",
		Help: "Total frames written to the gateway",
	}, []string{"operation"})

	FrameDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmu_frame_decode_errors_total",
		Help: "Total frames dropped because they could not be decoded",
	})

	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmu_bytes_received_total",
		Help: "Total bytes read from the gateway transport",
	})
)

// 会话指标
var (
	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "danmu_session_state",
		Help: "Current session state (0 idle, 1 connecting, 2 authenticating, 3 live, 4 closing, 5 failed)",
	})

	SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_session_failures_total",
		Help: "Session failures by reason",
	}, []string{"reason"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmu_reconnects_total",
		Help: "Total scheduled reconnect attempts",
	})

	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmu_heartbeat_timeouts_total",
		Help: "Total sessions failed because heartbeat acks stopped arriving",
	})

	Popularity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "danmu_room_popularity",
		Help: "Last popularity value reported in a heartbeat reply",
	})
)

// 分发指标
var (
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_events_dispatched_total",
		Help: "Total events delivered to the sink",
	}, []string{"kind"})

	SinkStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmu_sink_stalls_total",
		Help: "Total events dropped because the sink did not drain in time",
	})

	DispatchQueueUsage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "danmu_dispatch_queue_usage",
		Help:    "Dispatcher queue usage ratio at enqueue time",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 1.0},
	})

	MessagesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_messages_posted_total",
		Help: "Outbound chat messages by result",
	}, []string{"result"})
)
