package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/bilibili"
	"github.com/qiminjie89/danmu/pkg/config"
	"github.com/qiminjie89/danmu/pkg/transport"
)

// liveProvider 通过 getDanmuInfo 获取网关凭证
type liveProvider struct {
	api       *bilibili.Client
	uid       int64
	buvid     string
	endpoints []transport.Endpoint // 非空时替换接口返回的地址
}

func newLiveProvider(api *bilibili.Client, cfg config.BilibiliConfig) *liveProvider {
	p := &liveProvider{
		api:   api,
		uid:   cfg.UID,
		buvid: cfg.Buvid,
	}
	if p.uid == 0 {
		p.uid, _ = strconv.ParseInt(bilibili.CookieValue(cfg.Cookie, "DedeUserID"), 10, 64)
	}
	if p.buvid == "" {
		p.buvid = bilibili.CookieValue(cfg.Cookie, "buvid3")
	}
	for _, ep := range cfg.Endpoints {
		p.endpoints = append(p.endpoints, transport.Endpoint{Host: ep.Host, Port: ep.Port, Path: ep.Path})
	}
	return p
}

// Credentials 实现 danmu.CredentialProvider
func (p *liveProvider) Credentials(ctx context.Context, roomID int64) (*danmu.Credentials, error) {
	info, err := p.api.DanmuInfo(ctx, roomID)
	if err != nil {
		return nil, err
	}

	creds := &danmu.Credentials{
		UID:       p.uid,
		Token:     info.Token,
		Buvid:     p.buvid,
		Endpoints: info.Endpoints,
	}
	if len(p.endpoints) > 0 {
		creds.Endpoints = p.endpoints
	}
	return creds, nil
}

// livePoster 通过 msg/send 接口发送弹幕，网关 token 不参与
func livePoster(api *bilibili.Client) danmu.Poster {
	return danmu.PosterFunc(func(ctx context.Context, roomID int64, _ string, text string) error {
		if err := api.SendMessage(ctx, roomID, text); err != nil {
			return fmt.Errorf("send to room %d: %w", roomID, err)
		}
		return nil
	})
}

func newAPIClient(cfg *config.ClientConfig) *bilibili.Client {
	return bilibili.NewClient(bilibili.Config{
		APIBase:   cfg.Bilibili.APIBase,
		Cookie:    cfg.Bilibili.Cookie,
		CSRF:      cfg.Bilibili.CSRF,
		UserAgent: cfg.Gateway.UserAgent,
	})
}

func newDialer(cfg *config.ClientConfig) *transport.WebSocketDialer {
	header := http.Header{}
	header.Set("User-Agent", cfg.Gateway.UserAgent)
	header.Set("Origin", cfg.Gateway.Origin)
	if cfg.Bilibili.Cookie != "" {
		header.Set("Cookie", cfg.Bilibili.Cookie)
	}

	return transport.NewWebSocketDialer(transport.WebSocketConfig{
		ReadBufferSize:   cfg.Gateway.ReadBufferSize,
		WriteBufferSize:  cfg.Gateway.WriteBufferSize,
		HandshakeTimeout: cfg.Gateway.DialTimeout,
		WriteTimeout:     cfg.Gateway.WriteTimeout,
		Header:           header,
	})
}

// newClient 按配置组装客户端
func newClient(cfg *config.ClientConfig, sink danmu.Sink) *danmu.Client {
	api := newAPIClient(cfg)
	return danmu.NewClient(cfg, danmu.Deps{
		Dialer:   newDialer(cfg),
		Provider: newLiveProvider(api, cfg.Bilibili),
		Poster:   livePoster(api),
		Sink:     sink,
	})
}
