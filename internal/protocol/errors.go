package protocol

import "fmt"

// 认证回复错误码
const (
	AuthCodeSuccess    = 0    // 认证成功
	AuthCodeTokenError = -101 // key 无效或过期
)

// AuthCodeMessage 认证错误码对应的消息
var AuthCodeMessage = map[int]string{
	AuthCodeSuccess:    "success",
	AuthCodeTokenError: "token_error",
}

// FrameDecodeError 单个帧解码失败
type FrameDecodeError struct {
	Operation Operation
	Version   Version
	Sequence  uint32
	Err       error
}

func newDecodeError(h Header, err error) *FrameDecodeError {
	return &FrameDecodeError{
		Operation: h.Operation,
		Version:   h.Version,
		Sequence:  h.Sequence,
		Err:       err,
	}
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("decode frame op=%s version=%s seq=%d: %v", e.Operation, e.Version, e.Sequence, e.Err)
}

func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}
