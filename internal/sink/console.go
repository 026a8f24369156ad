package sink

import (
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/qiminjie89/danmu/internal/danmu"
)

// ConsoleSink 在终端打印事件
type ConsoleSink struct {
	log     *pterm.Logger
	verbose bool
}

// NewConsoleSink 创建终端输出。verbose 为 false 时不打印未识别命令与人气值。
func NewConsoleSink(w io.Writer, verbose bool) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	l := pterm.DefaultLogger.WithWriter(w)
	l.ShowTime = true
	l.TimeFormat = "15:04:05"
	l.MaxWidth = 1000

	return &ConsoleSink{log: l, verbose: verbose}
}

// OnEvent 实现 danmu.Sink
func (s *ConsoleSink) OnEvent(ev danmu.Event) {
	switch ev.Kind {
	case danmu.KindDanmaku, danmu.KindGift, danmu.KindSuperChat, danmu.KindEnter:
		s.log.Info(Summary(ev), s.log.Args("kind", string(ev.Kind)))
	case danmu.KindOther, danmu.KindPopularity:
		if s.verbose {
			s.log.Debug(Summary(ev), s.log.Args("kind", string(ev.Kind)))
		}
	case danmu.KindStatus:
		if ev.Status != nil && ev.Status.State == danmu.StateFailed {
			s.log.Warn(Summary(ev), s.log.Args("room_id", ev.RoomID))
			return
		}
		s.log.Info(Summary(ev), s.log.Args("room_id", ev.RoomID))
	case danmu.KindAuthError, danmu.KindDecodeError:
		s.log.Error(Summary(ev), s.log.Args("room_id", ev.RoomID))
	}
}

// EnableDebug 显示未识别命令
func (s *ConsoleSink) EnableDebug() {
	s.verbose = true
	s.log.Level = pterm.LogLevelDebug
}
