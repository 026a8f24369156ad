package sink

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/logger"
)

// Multi 按顺序把事件交给每个 sink，单个 sink 的 panic 不影响其他 sink
type Multi []danmu.Sink

// OnEvent 实现 danmu.Sink
func (m Multi) OnEvent(ev danmu.Event) {
	for _, s := range m {
		deliver(s, ev)
	}
}

func deliver(s danmu.Sink, ev danmu.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sink panicked",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.String("kind", string(ev.Kind)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.OnEvent(ev)
}
