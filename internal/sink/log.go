package sink

import (
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/danmu"
)

// LogSink 把事件写入 zap 日志，消息事件为 debug 级别
type LogSink struct {
	log *zap.Logger
}

// NewLogSink 创建日志 sink
func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{log: l.Named("events")}
}

// OnEvent 实现 danmu.Sink
func (s *LogSink) OnEvent(ev danmu.Event) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.Int64("room_id", ev.RoomID),
		zap.String("session_id", ev.SessionID),
	}

	switch ev.Kind {
	case danmu.KindStatus:
		if ev.Status != nil {
			fields = append(fields,
				zap.Stringer("state", ev.Status.State),
				zap.String("endpoint", ev.Status.Endpoint),
				zap.Bool("will_retry", ev.Status.WillRetry),
			)
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		s.log.Info("connection status", fields...)
	case danmu.KindAuthError, danmu.KindDecodeError:
		s.log.Warn("gateway error", append(fields, zap.Error(ev.Err))...)
	case danmu.KindPopularity:
		s.log.Debug("popularity", append(fields, zap.Uint32("popularity", ev.Popularity))...)
	default:
		if ce := s.log.Check(zap.DebugLevel, "message"); ce != nil {
			ce.Write(append(fields,
				zap.String("cmd", ev.Command),
				zap.ByteString("raw", ev.Raw),
			)...)
		}
	}
}
