package danmu

import "time"

// Heartbeat 心跳调度状态。本身不做 I/O，由连接管理器按间隔调用 Tick 并发送心跳帧。
type Heartbeat struct {
	Interval time.Duration

	running bool
	pending int // 已发送未回复的心跳数
	lastAck time.Time
}

// NewHeartbeat 创建心跳调度
func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{Interval: interval}
}

// Start 进入 Live 时调用
func (h *Heartbeat) Start() {
	h.running = true
	h.pending = 0
}

// Stop 离开 Live 时调用
func (h *Heartbeat) Stop() {
	h.running = false
}

// Running 是否在计时
func (h *Heartbeat) Running() bool {
	return h.running
}

// Tick 每个间隔到期时调用。返回 true 表示应发送一个心跳帧；
// 如果再发送会使未回复数超过 1（连续两个间隔没有回复），返回 ErrHeartbeatTimeout。
func (h *Heartbeat) Tick() (bool, error) {
	if !h.running {
		return false, nil
	}
	if h.pending+1 > 1 {
		return false, ErrHeartbeatTimeout
	}
	h.pending++
	return true, nil
}

// Ack 收到心跳回复
func (h *Heartbeat) Ack(at time.Time) {
	h.pending = 0
	h.lastAck = at
}

// Pending 未回复的心跳数
func (h *Heartbeat) Pending() int {
	return h.pending
}

// LastAck 最近一次心跳回复时间
func (h *Heartbeat) LastAck() time.Time {
	return h.lastAck
}
