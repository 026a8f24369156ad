package protocol

import (
	"encoding/json"
)

// EncodeBody 编码消息体（网关消息体均为 JSON）
func EncodeBody(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeBody 解码消息体
func DecodeBody(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
