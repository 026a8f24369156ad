package sink

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/internal/protocol"
)

// 常见命令的关键字段，其余字段保留在 Raw 中
type danmakuInfo struct {
	Info []json.RawMessage `json:"info"`
}

type giftData struct {
	Data struct {
		Uname    string `json:"uname"`
		GiftName string `json:"giftName"`
		Num      int    `json:"num"`
		Action   string `json:"action"`
	} `json:"data"`
}

type enterData struct {
	Data struct {
		Uname string `json:"uname"`
	} `json:"data"`
}

type superChatData struct {
	Data struct {
		Message  string `json:"message"`
		Price    int    `json:"price"`
		UserInfo struct {
			Uname string `json:"uname"`
		} `json:"user_info"`
	} `json:"data"`
}

// Summary 把事件格式化为一行文本，无法识别的消息返回命令名
func Summary(ev danmu.Event) string {
	switch ev.Kind {
	case danmu.KindDanmaku:
		if user, text, ok := parseDanmaku(ev.Raw); ok {
			return fmt.Sprintf("%s: %s", user, text)
		}
	case danmu.KindGift:
		var g giftData
		if json.Unmarshal(ev.Raw, &g) == nil && g.Data.Uname != "" {
			action := g.Data.Action
			if action == "" {
				action = "赠送"
			}
			return fmt.Sprintf("%s %s %s x%d", g.Data.Uname, action, g.Data.GiftName, g.Data.Num)
		}
	case danmu.KindEnter:
		var e enterData
		if json.Unmarshal(ev.Raw, &e) == nil && e.Data.Uname != "" {
			return fmt.Sprintf("%s 进入直播间", e.Data.Uname)
		}
	case danmu.KindSuperChat:
		var sc superChatData
		if json.Unmarshal(ev.Raw, &sc) == nil && sc.Data.Message != "" {
			return fmt.Sprintf("[SC ¥%d] %s: %s", sc.Data.Price, sc.Data.UserInfo.Uname, sc.Data.Message)
		}
	case danmu.KindPopularity:
		return fmt.Sprintf("人气 %d", ev.Popularity)
	case danmu.KindStatus:
		return statusLine(ev)
	case danmu.KindAuthError, danmu.KindDecodeError:
		return fmt.Sprintf("%s: %v", ev.Kind, ev.Err)
	}
	return ev.Command
}

// parseDanmaku 弹幕消息 info[1] 为内容，info[2][1] 为用户名
func parseDanmaku(raw []byte) (user, text string, ok bool) {
	var d danmakuInfo
	if err := json.Unmarshal(raw, &d); err != nil || len(d.Info) < 2 {
		return "", "", false
	}
	if err := json.Unmarshal(d.Info[1], &text); err != nil {
		return "", "", false
	}
	if len(d.Info) > 2 {
		var u []json.RawMessage
		if json.Unmarshal(d.Info[2], &u) == nil && len(u) > 1 {
			json.Unmarshal(u[1], &user)
		}
	}
	return user, text, true
}

func statusLine(ev danmu.Event) string {
	st := ev.Status
	if st == nil {
		return "status"
	}
	line := st.State.String()
	if st.Endpoint != "" {
		line += " " + st.Endpoint
	}
	if ev.Err != nil {
		line += fmt.Sprintf(" (%v)", ev.Err)
	}
	if st.WillRetry {
		line += fmt.Sprintf(", retry #%d in %s", st.Attempt, st.Delay)
	}
	return line
}

// isMessage 是否为网关业务消息
func isMessage(k danmu.Kind) bool {
	switch k {
	case danmu.KindDanmaku, danmu.KindGift, danmu.KindEnter, danmu.KindSuperChat, danmu.KindOther:
		return true
	}
	return false
}

// Encoding Kafka 记录的编码方式
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// record Kafka 中的事件格式
type record struct {
	Kind       danmu.Kind      `json:"kind" msgpack:"kind"`
	Command    string          `json:"cmd,omitempty" msgpack:"cmd,omitempty"`
	RoomID     int64           `json:"room_id" msgpack:"room_id"`
	SessionID  string          `json:"session_id,omitempty" msgpack:"session_id,omitempty"`
	Popularity uint32          `json:"popularity,omitempty" msgpack:"popularity,omitempty"`
	State      string          `json:"state,omitempty" msgpack:"state,omitempty"`
	Error      string          `json:"error,omitempty" msgpack:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"` // msgpack 中为原始 JSON 字节
	ReceivedAt int64           `json:"received_at" msgpack:"received_at"`       // 毫秒
}

func newRecord(ev danmu.Event) *record {
	r := &record{
		Kind:       ev.Kind,
		Command:    ev.Command,
		RoomID:     ev.RoomID,
		SessionID:  ev.SessionID,
		Popularity: ev.Popularity,
		Data:       ev.Raw,
		ReceivedAt: ev.ReceivedAt.UnixMilli(),
	}
	if ev.Status != nil {
		r.State = ev.Status.State.String()
	}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	return r
}

func encodeRecord(ev danmu.Event, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingMsgpack:
		return msgpack.Marshal(newRecord(ev))
	case EncodingJSON, "":
		return protocol.EncodeBody(newRecord(ev))
	default:
		return nil, fmt.Errorf("unknown record encoding %q", enc)
	}
}
