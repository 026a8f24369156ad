package danmu

import (
	"encoding/json"
	"time"

	"github.com/qiminjie89/danmu/internal/protocol"
)

// Kind 事件类型
type Kind string

const (
	// 由网关消息的 cmd 字段决定
	KindDanmaku   Kind = "danmaku"
	KindGift      Kind = "gift"
	KindEnter     Kind = "enter"
	KindSuperChat Kind = "super_chat"
	KindOther     Kind = "other"

	// 客户端自身产生
	KindPopularity  Kind = "popularity"
	KindStatus      Kind = "status"
	KindAuthError   Kind = "auth_error"
	KindDecodeError Kind = "decode_error"
)

// Event 解码后的事件，构造后不再修改
type Event struct {
	Kind       Kind
	Command    string          // 原始 cmd 名（去掉 ':' 后缀），仅消息事件
	Raw        json.RawMessage // 消息体，仅消息事件
	RoomID     int64
	SessionID  string
	Popularity uint32  // 仅 KindPopularity
	Status     *Status // 仅 KindStatus
	Err        error   // KindAuthError / KindDecodeError / 失败状态
	ReceivedAt time.Time
}

// Status 连接状态变化
type Status struct {
	State     State
	Endpoint  string
	WillRetry bool          // Failed 时是否会自动重连
	Attempt   int           // 第几次重连
	Delay     time.Duration // 距离下一次重连的等待
}

var commandKinds = map[string]Kind{
	protocol.CmdDanmaku:      KindDanmaku,
	protocol.CmdSendGift:     KindGift,
	protocol.CmdComboSend:    KindGift,
	protocol.CmdInteractWord: KindEnter,
	protocol.CmdEntryEffect:  KindEnter,
	protocol.CmdSuperChat:    KindSuperChat,
}

// classify 按命令名归类
func classify(cmd string) Kind {
	if k, ok := commandKinds[cmd]; ok {
		return k
	}
	return KindOther
}
