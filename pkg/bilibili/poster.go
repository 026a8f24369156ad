package bilibili

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrNoCSRF = errors.New("csrf token missing: set csrf or include bili_jct in cookie")

// 弹幕默认样式
const (
	defaultColor    = 16777215 // 白色
	defaultFontSize = 25
	defaultMode     = 1 // 滚动
)

// SendMessage 向直播间发送一条弹幕
func (c *Client) SendMessage(ctx context.Context, roomID int64, msg string) error {
	if c.cfg.CSRF == "" {
		return ErrNoCSRF
	}

	form := url.Values{}
	form.Set("bubble", "0")
	form.Set("msg", msg)
	form.Set("color", strconv.Itoa(defaultColor))
	form.Set("mode", strconv.Itoa(defaultMode))
	form.Set("fontsize", strconv.Itoa(defaultFontSize))
	form.Set("rnd", strconv.FormatInt(time.Now().Unix(), 10))
	form.Set("roomid", strconv.FormatInt(roomID, 10))
	form.Set("csrf", c.cfg.CSRF)
	form.Set("csrf_token", c.cfg.CSRF)

	req, err := c.newRequest(ctx, http.MethodPost, "/msg/send", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("send message to room %d: %w", roomID, err)
	}
	return nil
}
