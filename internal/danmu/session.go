package danmu

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qiminjie89/danmu/pkg/transport"
)

// State 会话状态
type State int32

const (
	StateIdle           State = iota // 0 - 尚未连接
	StateConnecting                  // 1 - 获取凭证并拨号
	StateAuthenticating              // 2 - 已发送 Auth，等待 AuthAck
	StateLive                        // 3 - 认证成功，心跳运行中
	StateClosing                     // 4 - stop / connect 替换，终态
	StateFailed                      // 5 - 失败，终态
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:           {StateConnecting, StateClosing},
	StateConnecting:     {StateAuthenticating, StateFailed, StateClosing},
	StateAuthenticating: {StateLive, StateFailed, StateClosing},
	StateLive:           {StateFailed, StateClosing},
	StateFailed:         {StateClosing},
	StateClosing:        {},
}

// Credentials 账号侧提供的网关凭证
type Credentials struct {
	UID       int64
	Token     string
	Buvid     string
	Endpoints []transport.Endpoint // 按优先级排列
}

// Session 一次连接尝试。只在事件循环中修改；重连时整体替换，不会回到 Idle。
type Session struct {
	ID          string
	RoomID      int64
	Credentials *Credentials
	Endpoint    transport.Endpoint
	State       State
	CreatedAt   time.Time

	seq uint32 // 出站帧序号

	conn       transport.Conn
	ctx        context.Context
	cancel     context.CancelFunc
	readerDone chan struct{}
	heartbeat  *Heartbeat

	authTimer      *time.Timer
	heartbeatTimer *time.Timer
}

func newSession(roomID int64, heartbeatInterval time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		State:     StateIdle,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		heartbeat: NewHeartbeat(heartbeatInterval),
	}
}

// transition 切换状态，非法切换返回 false
func (s *Session) transition(next State) bool {
	for _, allowed := range validTransitions[s.State] {
		if allowed == next {
			s.State = next
			return true
		}
	}
	return false
}

// nextSeq 分配出站帧序号，单调递增
func (s *Session) nextSeq() uint32 {
	s.seq++
	return s.seq
}

// LastHeartbeatAck 最近一次心跳回复时间，未收到时为零值
func (s *Session) LastHeartbeatAck() time.Time {
	return s.heartbeat.LastAck()
}

// terminated 是否已进入终态
func (s *Session) terminated() bool {
	return s.State == StateClosing || s.State == StateFailed
}

func (s *Session) stopTimers() {
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
		s.heartbeatTimer = nil
	}
}
