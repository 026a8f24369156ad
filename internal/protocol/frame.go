package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
)

/*
弹幕网关帧格式（大端序）：
+-------------+-----------+---------+-----------+----------+--------------------+
| TotalLength | HeaderLen | Version | Operation | Sequence |      Payload       |
|   4 bytes   |  2 bytes  | 2 bytes |  4 bytes  |  4 bytes | TotalLength - 16   |
+-------------+-----------+---------+-----------+----------+--------------------+
压缩帧（zlib / brotli）的 Payload 解压后是若干个完整帧的拼接。
*/

const (
	HeaderSize  = 16
	MaxFrameLen = 16 << 20 // 16MB

	// 压缩帧最多嵌套的层数
	maxNestDepth = 2
)

var (
	ErrFrameTooShort      = errors.New("frame shorter than header")
	ErrInvalidLength      = errors.New("invalid total length")
	ErrFrameTooLarge      = errors.New("frame too large")
	ErrHeaderLength       = errors.New("unexpected header length")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrNestTooDeep        = errors.New("compressed frames nested too deep")
)

// Version 协议版本，决定 Payload 的编码方式
type Version uint16

const (
	VersionPlain          Version = 0 // JSON 明文
	VersionHeartbeatReply Version = 1 // 心跳回复，Payload 为 4 字节人气值
	VersionZlib           Version = 2 // zlib 压缩的帧集合
	VersionBrotli         Version = 3 // brotli 压缩的帧集合
)

func (v Version) String() string {
	switch v {
	case VersionPlain:
		return "plain"
	case VersionHeartbeatReply:
		return "heartbeat_reply"
	case VersionZlib:
		return "zlib"
	case VersionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("version(%d)", uint16(v))
	}
}

// Compressed 是否为压缩帧
func (v Version) Compressed() bool {
	return v == VersionZlib || v == VersionBrotli
}

// Operation 帧操作码
type Operation uint32

const (
	OpHeartbeat    Operation = 2 // 客户端心跳
	OpHeartbeatAck Operation = 3 // 心跳回复
	OpMessage      Operation = 5 // 业务消息
	OpAuth         Operation = 7 // 认证请求
	OpAuthAck      Operation = 8 // 认证回复
)

func (o Operation) String() string {
	switch o {
	case OpHeartbeat:
		return "heartbeat"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	case OpMessage:
		return "message"
	case OpAuth:
		return "auth"
	case OpAuthAck:
		return "auth_ack"
	default:
		return fmt.Sprintf("op(%d)", uint32(o))
	}
}

// Frame 表示一个消息帧
type Frame struct {
	Version   Version
	Operation Operation
	Sequence  uint32
	Payload   []byte
}

// TotalLength 帧总长度（含头部）
func (f *Frame) TotalLength() int {
	return HeaderSize + len(f.Payload)
}

// Header 帧头
type Header struct {
	TotalLength  uint32
	HeaderLength uint16
	Version      Version
	Operation    Operation
	Sequence     uint32
}

// ParseHeader 解析帧头，不校验长度字段
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrFrameTooShort
	}
	return Header{
		TotalLength:  binary.BigEndian.Uint32(data[0:4]),
		HeaderLength: binary.BigEndian.Uint16(data[4:6]),
		Version:      Version(binary.BigEndian.Uint16(data[6:8])),
		Operation:    Operation(binary.BigEndian.Uint32(data[8:12])),
		Sequence:     binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// EncodeFrame 编码一个明文帧
func EncodeFrame(op Operation, seq uint32, payload []byte) []byte {
	return encode(VersionPlain, op, seq, payload)
}

func encode(v Version, op Operation, seq uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))

	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], HeaderSize)
	binary.BigEndian.PutUint16(buf[6:8], uint16(v))
	binary.BigEndian.PutUint32(buf[8:12], uint32(op))
	binary.BigEndian.PutUint32(buf[12:16], seq)
	copy(buf[HeaderSize:], payload)

	return buf
}

// Decode 解码 data 中的帧。压缩帧会被解压并展开为内部帧，
// 调用方看到的顺序与线上顺序一致。
// 单个帧出错时产出一个 *FrameDecodeError 并继续下一个帧；
// 长度字段损坏导致无法定位下一个帧时，产出错误后结束。
func Decode(data []byte) iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		walk(data, 0, yield)
	}
}

// walk 返回 false 表示调用方已停止迭代
func walk(data []byte, depth int, yield func(*Frame, error) bool) bool {
	for len(data) > 0 {
		h, err := ParseHeader(data)
		if err != nil {
			return yield(nil, &FrameDecodeError{Err: err})
		}
		if h.TotalLength < HeaderSize || int64(h.TotalLength) > int64(len(data)) {
			return yield(nil, newDecodeError(h, ErrInvalidLength))
		}

		raw := data[:h.TotalLength]
		data = data[h.TotalLength:]

		if h.HeaderLength != HeaderSize {
			if !yield(nil, newDecodeError(h, ErrHeaderLength)) {
				return false
			}
			continue
		}

		payload := raw[HeaderSize:]
		switch h.Version {
		case VersionPlain, VersionHeartbeatReply:
			f := &Frame{
				Version:   h.Version,
				Operation: h.Operation,
				Sequence:  h.Sequence,
				Payload:   append([]byte(nil), payload...),
			}
			if !yield(f, nil) {
				return false
			}

		case VersionZlib, VersionBrotli:
			if depth >= maxNestDepth {
				if !yield(nil, newDecodeError(h, ErrNestTooDeep)) {
					return false
				}
				continue
			}
			inner, err := decompress(h.Version, payload)
			if err != nil {
				if !yield(nil, newDecodeError(h, err)) {
					return false
				}
				continue
			}
			if !walk(inner, depth+1, yield) {
				return false
			}

		default:
			if !yield(nil, newDecodeError(h, ErrUnsupportedVersion)) {
				return false
			}
		}
	}
	return true
}

// FrameBuffer 累积网络读取的字节，按 TotalLength 切出完整帧
type FrameBuffer struct {
	buf []byte
}

// Write 追加读取到的字节
func (b *FrameBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Len 当前缓存的字节数
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}

// Next 取出下一个完整帧的原始字节；数据不足时返回 nil, nil。
// 长度字段非法时丢弃已缓存的数据并返回错误，连接可以继续使用。
func (b *FrameBuffer) Next() ([]byte, error) {
	if len(b.buf) < HeaderSize {
		return nil, nil
	}

	h, _ := ParseHeader(b.buf)
	if h.TotalLength < HeaderSize || h.TotalLength > MaxFrameLen {
		b.buf = nil
		if h.TotalLength > MaxFrameLen {
			return nil, newDecodeError(h, ErrFrameTooLarge)
		}
		return nil, newDecodeError(h, ErrInvalidLength)
	}
	if len(b.buf) < int(h.TotalLength) {
		return nil, nil
	}

	raw := b.buf[:h.TotalLength:h.TotalLength]
	b.buf = b.buf[h.TotalLength:]
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return raw, nil
}
