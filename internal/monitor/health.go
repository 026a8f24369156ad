// Package monitor 提供健康检查与 Prometheus 指标的 HTTP 服务
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qiminjie89/danmu/internal/danmu"
	"github.com/qiminjie89/danmu/pkg/logger"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	State         string  `json:"state"`
	RoomID        int64   `json:"room_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// StateFunc 返回当前会话状态
type StateFunc func() danmu.State

// Server 健康检查服务
type Server struct {
	addr    string
	roomID  int64
	state   StateFunc
	started time.Time
	srv     *http.Server
}

// NewServer 创建服务
func NewServer(addr string, roomID int64, state StateFunc) *Server {
	s := &Server{
		addr:    addr,
		roomID:  roomID,
		state:   state,
		started: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler 路由：/health 与 /metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start 在后台运行服务
func (s *Server) Start() {
	logger.Info("starting health server", zap.String("addr", s.addr))

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()
}

// Stop 关闭服务
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// healthHandler 只有 Live 时返回 200
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := s.state()
	health := &HealthStatus{
		State:         st.String(),
		RoomID:        s.roomID,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	if st == danmu.StateLive {
		health.Status = "healthy"
		w.WriteHeader(http.StatusOK)
	} else {
		health.Status = "unhealthy"
		health.Reason = "session_" + st.String()
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(health)
}
