// Package protocol 定义弹幕网关的帧格式、消息体和命令常量
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
)

// 认证请求固定字段
const (
	ProtoVerBrotli = 3 // 请求服务端使用 brotli 压缩下行消息
	PlatformWeb    = "web"
	AuthTypeClient = 2
)

// 常见命令名（cmd 字段中 ':' 之前的部分）
const (
	CmdDanmaku      = "DANMU_MSG"          // 弹幕
	CmdSendGift     = "SEND_GIFT"          // 礼物
	CmdComboSend    = "COMBO_SEND"         // 连击礼物
	CmdInteractWord = "INTERACT_WORD"      // 进入房间 / 关注
	CmdEntryEffect  = "ENTRY_EFFECT"       // 进场特效
	CmdSuperChat    = "SUPER_CHAT_MESSAGE" // 醒目留言
)

var ErrMissingCommand = errors.New("message has no cmd field")

// AuthBody 认证请求体
type AuthBody struct {
	UID      int64  `json:"uid"`
	RoomID   int64  `json:"roomid"`
	ProtoVer int    `json:"protover"`
	Buvid    string `json:"buvid,omitempty"`
	Platform string `json:"platform"`
	Type     int    `json:"type"`
	Key      string `json:"key"`
}

// NewAuthBody 构造认证请求体
func NewAuthBody(uid, roomID int64, key, buvid string) *AuthBody {
	return &AuthBody{
		UID:      uid,
		RoomID:   roomID,
		ProtoVer: ProtoVerBrotli,
		Buvid:    buvid,
		Platform: PlatformWeb,
		Type:     AuthTypeClient,
		Key:      key,
	}
}

// AuthReply 认证回复
type AuthReply struct {
	Code int `json:"code"`
}

// OK 认证是否成功
func (r *AuthReply) OK() bool {
	return r.Code == AuthCodeSuccess
}

// Command 业务消息外层结构
type Command struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
	Info json.RawMessage `json:"info,omitempty"`
}

// ParseCommand 解析业务消息，返回去掉 ':' 后缀的命令名
func ParseCommand(payload []byte) (string, error) {
	var c Command
	if err := DecodeBody(payload, &c); err != nil {
		return "", err
	}
	if c.Cmd == "" {
		return "", ErrMissingCommand
	}
	return CommandName(c.Cmd), nil
}

// CommandName DANMU_MSG:4:0:2:2:2:0 -> DANMU_MSG
func CommandName(cmd string) string {
	if i := strings.IndexByte(cmd, ':'); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

// ParsePopularity 解析心跳回复中的人气值
func ParsePopularity(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, ErrFrameTooShort
	}
	return binary.BigEndian.Uint32(payload[:4]), nil
}
