package danmu

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveSession  = errors.New("no live session")
	ErrClientClosed     = errors.New("client closed")
	ErrSinkStall        = errors.New("event sink stalled")
	ErrAuthRejected     = errors.New("auth rejected by gateway")
	ErrAuthTimeout      = errors.New("auth ack not received in time")
	ErrHeartbeatTimeout = errors.New("heartbeat ack not received in time")
	ErrNoEndpoints      = errors.New("no gateway endpoints")
	ErrNoPoster         = errors.New("no message poster configured")
)

// TransportError 拨号 / 读 / 写失败，会触发重连
type TransportError struct {
	Stage    string // dial, read, write
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("transport %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Stage, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// failureReason 用作监控标签
func failureReason(err error) string {
	var te *TransportError
	switch {
	case errors.As(err, &te):
		return te.Stage
	case errors.Is(err, ErrHeartbeatTimeout):
		return "heartbeat_timeout"
	case errors.Is(err, ErrAuthTimeout):
		return "auth_timeout"
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	default:
		return "other"
	}
}
