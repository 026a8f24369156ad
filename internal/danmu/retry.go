package danmu

import (
	"math/rand"
	"time"

	"github.com/qiminjie89/danmu/pkg/config"
)

// RetryPolicy 指数退避，进入 Live 时重置
type RetryPolicy struct {
	Attempt int           // 上次成功后的重试次数
	Backoff time.Duration // 当前退避（不含抖动）

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64

	rand func() float64
}

// NewRetryPolicy 创建退避策略
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		BaseDelay: cfg.BaseDelay,
		MaxDelay:  cfg.MaxDelay,
		Jitter:    cfg.Jitter,
		rand:      rand.Float64,
	}
}

// Next 计算下一次重连前的等待并递增 Attempt
func (p *RetryPolicy) Next() time.Duration {
	d := p.MaxDelay
	if p.Attempt < 32 {
		if exp := p.BaseDelay << p.Attempt; exp > 0 && exp < p.MaxDelay {
			d = exp
		}
	}
	p.Backoff = d
	p.Attempt++

	if p.Jitter > 0 {
		// 加上抖动会超过上限时改为向下抖动
		j := time.Duration(p.rand() * p.Jitter * float64(d))
		if d+j <= p.MaxDelay {
			d += j
		} else {
			d -= j
		}
	}
	return d
}

// Reset 清零
func (p *RetryPolicy) Reset() {
	p.Attempt = 0
	p.Backoff = 0
}
