package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qiminjie89/danmu/pkg/bilibili"
	"github.com/qiminjie89/danmu/pkg/config"
)

func newDanmuInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"token": "gw-token",
				"host_list": []map[string]any{
					{"host": "a.chat.test", "port": 2243, "wss_port": 443, "ws_port": 2244},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLiveProviderCredentials(t *testing.T) {
	srv := newDanmuInfoServer(t)
	cfg := config.BilibiliConfig{
		Cookie: "SESSDATA=x; DedeUserID=777; buvid3=abc-def; bili_jct=csrf",
	}
	p := newLiveProvider(bilibili.NewClient(bilibili.Config{APIBase: srv.URL, Cookie: cfg.Cookie}), cfg)

	creds, err := p.Credentials(context.Background(), 12345)
	if err != nil {
		t.Fatal(err)
	}
	if creds.UID != 777 || creds.Buvid != "abc-def" || creds.Token != "gw-token" {
		t.Errorf("creds = %+v", creds)
	}
	if len(creds.Endpoints) != 1 || creds.Endpoints[0].Host != "a.chat.test" || creds.Endpoints[0].Port != 443 {
		t.Errorf("endpoints = %+v", creds.Endpoints)
	}
}

func TestLiveProviderStaticEndpoints(t *testing.T) {
	srv := newDanmuInfoServer(t)
	cfg := config.BilibiliConfig{
		UID:       1,
		Endpoints: []config.EndpointConfig{{Host: "static.test", Port: 8443, Path: "/sub"}},
	}
	p := newLiveProvider(bilibili.NewClient(bilibili.Config{APIBase: srv.URL}), cfg)

	creds, err := p.Credentials(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(creds.Endpoints) != 1 || creds.Endpoints[0].Host != "static.test" {
		t.Errorf("endpoints = %+v", creds.Endpoints)
	}
	if creds.Token != "gw-token" {
		t.Errorf("token = %q", creds.Token)
	}
}
