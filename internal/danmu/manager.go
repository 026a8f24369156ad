package danmu

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/protocol"
	"github.com/qiminjie89/danmu/pkg/config"
	"github.com/qiminjie89/danmu/pkg/logger"
	"github.com/qiminjie89/danmu/pkg/metrics"
	"github.com/qiminjie89/danmu/pkg/transport"
)

// CredentialProvider 账号侧协作者，提供房间的网关凭证
type CredentialProvider interface {
	Credentials(ctx context.Context, roomID int64) (*Credentials, error)
}

// ProviderFunc 函数适配为 CredentialProvider
type ProviderFunc func(ctx context.Context, roomID int64) (*Credentials, error)

// Credentials 实现 CredentialProvider
func (f ProviderFunc) Credentials(ctx context.Context, roomID int64) (*Credentials, error) {
	return f(ctx, roomID)
}

// decoded 读循环解出的一个帧或一个解码错误
type decoded struct {
	frame *protocol.Frame
	err   error
}

// manager 连接管理器。除 dial / readLoop 外的方法只能在事件循环中调用。
type manager struct {
	cfg        config.GatewayConfig
	dialer     transport.Dialer
	provider   CredentialProvider
	dispatcher *Dispatcher
	post       func(func()) bool

	session *Session
	retry   *RetryPolicy
	roomID  int64
	gen     uint64 // connect / stop 时递增，使旧的退避定时器失效
	backoff *time.Timer

	state atomic.Int32 // 供其他 goroutine 读取
}

func newManager(cfg *config.ClientConfig, dialer transport.Dialer, provider CredentialProvider, dispatcher *Dispatcher, post func(func()) bool) *manager {
	return &manager{
		cfg:        cfg.Gateway,
		dialer:     dialer,
		provider:   provider,
		dispatcher: dispatcher,
		post:       post,
		retry:      NewRetryPolicy(cfg.Retry),
	}
}

// connect 替换当前会话。旧会话在新会话开始前同步关闭。
func (m *manager) connect(roomID int64) {
	m.cancelBackoff()
	if m.session != nil {
		m.closeSession(m.session)
	}

	m.gen++
	m.roomID = roomID
	m.retry.Reset()
	m.startSession()
}

// stop 关闭当前会话并取消待执行的重连。没有会话时什么都不做。
func (m *manager) stop() {
	pending := m.backoff != nil
	m.gen++
	m.cancelBackoff()

	if m.session != nil {
		m.closeSession(m.session)
	} else if pending {
		m.emitStatus(nil, &Status{State: StateClosing}, nil)
	}
	m.setState(StateIdle)
}

// liveSession 返回 Live 会话的房间号与 token
func (m *manager) liveSession() (int64, string, bool) {
	s := m.session
	if s == nil || s.State != StateLive {
		return 0, "", false
	}
	return s.RoomID, s.Credentials.Token, true
}

func (m *manager) currentState() State {
	return State(m.state.Load())
}

func (m *manager) setState(st State) {
	m.state.Store(int32(st))
	metrics.SessionState.Set(float64(st))
}

func (m *manager) log(s *Session) *zap.Logger {
	return logger.With(
		zap.Int64("room_id", s.RoomID),
		zap.String("session_id", s.ID),
	)
}

func (m *manager) startSession() {
	s := newSession(m.roomID, m.cfg.HeartbeatInterval)
	m.session = s
	s.transition(StateConnecting)
	m.setState(StateConnecting)

	m.log(s).Info("connecting to danmu gateway", zap.Int("attempt", m.retry.Attempt))
	m.emitStatus(s, &Status{State: StateConnecting, Attempt: m.retry.Attempt}, nil)

	go m.dial(s)
}

// dial 获取凭证并按优先级依次尝试网关地址，结果投递回事件循环
func (m *manager) dial(s *Session) {
	creds, err := m.provider.Credentials(s.ctx, s.RoomID)
	if err == nil && (creds == nil || len(creds.Endpoints) == 0) {
		err = ErrNoEndpoints
	}
	if err != nil {
		m.post(func() { m.onDialFailed(s, &TransportError{Stage: "dial", Err: fmt.Errorf("credentials: %w", err)}) })
		return
	}

	var lastErr error
	for _, ep := range creds.Endpoints {
		ctx, cancel := context.WithTimeout(s.ctx, m.cfg.DialTimeout)
		conn, err := m.dialer.Dial(ctx, ep)
		cancel()

		if err == nil {
			if !m.post(func() { m.onDialed(s, creds, ep, conn) }) {
				conn.Close()
			}
			return
		}

		lastErr = &TransportError{Stage: "dial", Endpoint: ep.String(), Err: err}
		if s.ctx.Err() != nil {
			break
		}
		m.log(s).Warn("dial gateway failed", zap.String("endpoint", ep.String()), zap.Error(err))
	}

	m.post(func() { m.onDialFailed(s, lastErr) })
}

func (m *manager) onDialFailed(s *Session, err error) {
	if m.session != s || s.State != StateConnecting {
		return
	}
	m.fail(s, err, true)
}

func (m *manager) onDialed(s *Session, creds *Credentials, ep transport.Endpoint, conn transport.Conn) {
	if m.session != s || s.State != StateConnecting {
		conn.Close()
		return
	}

	s.conn = conn
	s.Credentials = creds
	s.Endpoint = ep
	s.transition(StateAuthenticating)
	m.setState(StateAuthenticating)

	s.readerDone = make(chan struct{})
	go m.readLoop(s)

	body, err := protocol.EncodeBody(protocol.NewAuthBody(creds.UID, s.RoomID, creds.Token, creds.Buvid))
	if err != nil {
		m.fail(s, err, true)
		return
	}
	if err := m.write(s, protocol.OpAuth, body); err != nil {
		m.fail(s, err, true)
		return
	}

	s.authTimer = time.AfterFunc(m.cfg.AuthTimeout, func() {
		m.post(func() {
			if m.session == s && s.State == StateAuthenticating {
				m.fail(s, ErrAuthTimeout, true)
			}
		})
	})

	m.log(s).Debug("auth sent", zap.String("endpoint", ep.String()))
	m.emitStatus(s, &Status{State: StateAuthenticating, Endpoint: ep.String()}, nil)
}

// readLoop 读循环，运行在独立 goroutine。只解码，不修改会话。
func (m *manager) readLoop(s *Session) {
	defer close(s.readerDone)

	var buf protocol.FrameBuffer
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			m.post(func() { m.onReadError(s, err) })
			return
		}
		metrics.BytesReceived.Add(float64(len(data)))
		buf.Write(data)

		var batch []decoded
		for {
			raw, err := buf.Next()
			if err != nil {
				batch = append(batch, decoded{err: err})
				continue
			}
			if raw == nil {
				break
			}
			for f, err := range protocol.Decode(raw) {
				batch = append(batch, decoded{frame: f, err: err})
			}
		}

		if len(batch) > 0 {
			at := time.Now()
			m.post(func() { m.onFrames(s, batch, at) })
		}
	}
}

func (m *manager) onReadError(s *Session, err error) {
	if m.session != s || s.terminated() {
		return
	}
	m.fail(s, &TransportError{Stage: "read", Endpoint: s.Endpoint.String(), Err: err}, true)
}

// onFrames 按线上顺序处理一批帧
func (m *manager) onFrames(s *Session, batch []decoded, at time.Time) {
	for _, d := range batch {
		if m.session != s || s.terminated() {
			return
		}
		if d.err != nil {
			metrics.FrameDecodeErrors.Inc()
			m.log(s).Warn("drop undecodable frame", zap.Error(d.err))
			m.emit(s, Event{Kind: KindDecodeError, Err: d.err, ReceivedAt: at})
			continue
		}
		metrics.FramesReceived.WithLabelValues(d.frame.Operation.String()).Inc()
		m.handleFrame(s, d.frame, at)
	}
}

func (m *manager) handleFrame(s *Session, f *protocol.Frame, at time.Time) {
	switch f.Operation {
	case protocol.OpAuthAck:
		m.handleAuthAck(s, f)

	case protocol.OpHeartbeatAck:
		s.heartbeat.Ack(at)
		if n, err := protocol.ParsePopularity(f.Payload); err == nil {
			metrics.Popularity.Set(float64(n))
			m.emit(s, Event{Kind: KindPopularity, Popularity: n, ReceivedAt: at})
		}

	case protocol.OpMessage:
		if s.State != StateLive {
			m.log(s).Debug("drop message before auth ack")
			return
		}
		cmd, err := protocol.ParseCommand(f.Payload)
		if err != nil {
			metrics.FrameDecodeErrors.Inc()
			err = &protocol.FrameDecodeError{Operation: f.Operation, Version: f.Version, Sequence: f.Sequence, Err: err}
			m.emit(s, Event{Kind: KindDecodeError, Err: err, ReceivedAt: at})
			return
		}
		m.emit(s, Event{
			Kind:       classify(cmd),
			Command:    cmd,
			Raw:        f.Payload,
			ReceivedAt: at,
		})

	default:
		m.log(s).Debug("ignore frame", zap.Stringer("operation", f.Operation))
	}
}

func (m *manager) handleAuthAck(s *Session, f *protocol.Frame) {
	if s.State != StateAuthenticating {
		return
	}

	var reply protocol.AuthReply
	if err := protocol.DecodeBody(f.Payload, &reply); err != nil {
		m.fail(s, &protocol.FrameDecodeError{Operation: f.Operation, Version: f.Version, Sequence: f.Sequence, Err: err}, true)
		return
	}

	if !reply.OK() {
		err := fmt.Errorf("%w: code=%d", ErrAuthRejected, reply.Code)
		m.log(s).Error("gateway rejected auth", zap.Int("code", reply.Code))
		m.emit(s, Event{Kind: KindAuthError, Err: err})
		m.fail(s, err, false)
		return
	}

	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	s.transition(StateLive)
	m.setState(StateLive)
	m.retry.Reset()

	s.heartbeat.Start()
	m.scheduleHeartbeat(s)

	m.log(s).Info("danmu session live", zap.String("endpoint", s.Endpoint.String()))
	m.emitStatus(s, &Status{State: StateLive, Endpoint: s.Endpoint.String()}, nil)
}

func (m *manager) scheduleHeartbeat(s *Session) {
	s.heartbeatTimer = time.AfterFunc(s.heartbeat.Interval, func() {
		m.post(func() { m.onHeartbeatTick(s) })
	})
}

func (m *manager) onHeartbeatTick(s *Session) {
	if m.session != s || s.State != StateLive {
		return
	}

	send, err := s.heartbeat.Tick()
	if err != nil {
		metrics.HeartbeatTimeouts.Inc()
		m.log(s).Warn("heartbeat timeout", zap.Time("last_ack", s.LastHeartbeatAck()))
		m.fail(s, err, true)
		return
	}
	if send {
		if err := m.write(s, protocol.OpHeartbeat, nil); err != nil {
			m.fail(s, err, true)
			return
		}
	}
	m.scheduleHeartbeat(s)
}

// write 发送一个明文帧
func (m *manager) write(s *Session, op protocol.Operation, payload []byte) error {
	frame := protocol.EncodeFrame(op, s.nextSeq(), payload)
	if err := s.conn.WriteMessage(frame); err != nil {
		return &TransportError{Stage: "write", Endpoint: s.Endpoint.String(), Err: err}
	}
	metrics.FramesSent.WithLabelValues(op.String()).Inc()
	return nil
}

// fail 会话进入 Failed；retry 为 true 时按退避策略安排新会话
func (m *manager) fail(s *Session, err error, retry bool) {
	if !s.transition(StateFailed) {
		return
	}
	m.setState(StateFailed)
	m.teardown(s)
	m.session = nil
	metrics.SessionFailures.WithLabelValues(failureReason(err)).Inc()

	if !retry {
		m.emitStatus(s, &Status{State: StateFailed}, err)
		return
	}

	delay := m.retry.Next()
	metrics.Reconnects.Inc()
	m.log(s).Warn("danmu session failed, reconnecting",
		zap.Error(err),
		zap.Int("attempt", m.retry.Attempt),
		zap.Duration("delay", delay),
	)
	m.emitStatus(s, &Status{State: StateFailed, WillRetry: true, Attempt: m.retry.Attempt, Delay: delay}, err)

	gen := m.gen
	m.backoff = time.AfterFunc(delay, func() {
		m.post(func() {
			if m.gen != gen || m.session != nil {
				return
			}
			m.backoff = nil
			m.startSession()
		})
	})
}

// closeSession 主动关闭（stop 或被新的 connect 替换）
func (m *manager) closeSession(s *Session) {
	s.transition(StateClosing)
	m.setState(StateClosing)
	m.teardown(s)
	m.session = nil

	m.log(s).Info("danmu session closed")
	m.emitStatus(s, &Status{State: StateClosing}, nil)
	m.setState(StateIdle)
}

// teardown 释放会话资源，等待读循环退出
func (m *manager) teardown(s *Session) {
	s.stopTimers()
	s.heartbeat.Stop()
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	if s.readerDone != nil {
		<-s.readerDone
	}
}

func (m *manager) cancelBackoff() {
	if m.backoff != nil {
		m.backoff.Stop()
		m.backoff = nil
	}
}

func (m *manager) emitStatus(s *Session, st *Status, err error) {
	m.emit(s, Event{Kind: KindStatus, Status: st, Err: err})
}

// emit 交给 Dispatcher；队列满时最多阻塞 enqueue_timeout
func (m *manager) emit(s *Session, ev Event) {
	ev.RoomID = m.roomID
	if s != nil {
		ev.RoomID = s.RoomID
		ev.SessionID = s.ID
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	m.dispatcher.Dispatch(ev)
}
