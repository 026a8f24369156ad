package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/qiminjie89/danmu/pkg/transport"
)

// 接口为空时使用的默认网关
var DefaultEndpoint = transport.Endpoint{
	Host: "broadcastlv.chat.bilibili.com",
	Port: 443,
	Path: "/sub",
}

// DanmuInfo 弹幕网关凭证
type DanmuInfo struct {
	Token     string
	Endpoints []transport.Endpoint
}

type danmuInfoData struct {
	Token    string `json:"token"`
	HostList []struct {
		Host    string `json:"host"`
		Port    int    `json:"port"`
		WssPort int    `json:"wss_port"`
		WsPort  int    `json:"ws_port"`
	} `json:"host_list"`
}

// DanmuInfo 获取房间的网关 token 和地址列表，地址按接口返回的优先级排列
func (c *Client) DanmuInfo(ctx context.Context, roomID int64) (*DanmuInfo, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(roomID, 10))
	q.Set("type", "0")

	req, err := c.newRequest(ctx, http.MethodGet, "/xlive/web-room/v1/index/getDanmuInfo?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get danmu info for room %d: %w", roomID, err)
	}

	var data danmuInfoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode danmu info: %w", err)
	}

	info := &DanmuInfo{Token: data.Token}
	for _, h := range data.HostList {
		if h.Host == "" || h.WssPort == 0 {
			continue
		}
		info.Endpoints = append(info.Endpoints, transport.Endpoint{
			Host: h.Host,
			Port: h.WssPort,
			Path: "/sub",
		})
	}
	if len(info.Endpoints) == 0 {
		info.Endpoints = []transport.Endpoint{DefaultEndpoint}
	}

	return info, nil
}
