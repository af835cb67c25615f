// =============================================================================
// 文件: internal/metrics/server.go
// 描述: 健康检查、Metrics 与事件流服务 - Prometheus 标准格式
// =============================================================================
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer 指标服务器
type MetricsServer struct {
	listen      string
	metricsPath string
	healthPath  string
	enablePprof bool

	tracePath    string
	traceHandler http.Handler

	httpServer *http.Server
	listener   net.Listener
	registry   *prometheus.Registry
	startTime  time.Time
	version    string

	healthy     atomic.Bool
	healthCheck func() HealthStatus

	mu sync.RWMutex
}

// HealthStatus 健康状态
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth 组件健康状态
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewMetricsServer 创建指标服务器
func NewMetricsServer(listen, metricsPath, healthPath string, enablePprof bool) *MetricsServer {
	// 自定义 registry, 避免污染全局
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &MetricsServer{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		enablePprof: enablePprof,
		registry:    registry,
		startTime:   time.Now(),
	}
	s.healthy.Store(true)
	return s
}

// SetVersion 设置健康检查中报告的版本
func (s *MetricsServer) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// RegisterCollector 注册 Prometheus 收集器
func (s *MetricsServer) RegisterCollector(c prometheus.Collector) error {
	return s.registry.Register(c)
}

// MustRegisterCollector 注册收集器 (失败时 panic)
func (s *MetricsServer) MustRegisterCollector(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck 设置健康检查函数
func (s *MetricsServer) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheck = fn
}

// SetTraceHandler 挂载事件流端点
func (s *MetricsServer) SetTraceHandler(path string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracePath = path
	s.traceHandler = h
}

// Handler 构建路由 (Start 使用, 也便于测试)
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLiveness)
	mux.HandleFunc(s.healthPath+"/ready", s.handleReadiness)

	// Prometheus metrics 端点
	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	s.mu.RLock()
	if s.traceHandler != nil && s.tracePath != "" {
		mux.Handle(s.tracePath, s.traceHandler)
	}
	s.mu.RUnlock()

	// pprof 调试端点
	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

// Start 启动服务器, 监听失败时立即返回错误
func (s *MetricsServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("metrics 监听失败: %w", err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Metrics] 服务器错误: %v\n", err)
		}
	}()

	return nil
}

// Addr 实际监听地址 (Start 之后有效)
func (s *MetricsServer) Addr() string {
	if s.listener == nil {
		return s.listen
	}
	return s.listener.Addr().String()
}

// handleHealth 健康检查处理, 返回各版本的运行状态
func (s *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.status()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// handleLiveness 存活探针: 只看进程级开关
func (s *MetricsServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.healthy.Load(), "OK", "NOT OK")
}

// handleReadiness 就绪探针: 交付违规 (degraded) 仍算就绪, 报告照常可读
func (s *MetricsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	st := s.status().Status
	writeProbe(w, st == "healthy" || st == "degraded", "READY", "NOT READY")
}

func writeProbe(w http.ResponseWriter, ok bool, okBody, failBody string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(failBody))
		return
	}
	w.Write([]byte(okBody))
}

func (s *MetricsServer) status() HealthStatus {
	s.mu.RLock()
	check, version := s.healthCheck, s.version
	s.mu.RUnlock()

	status := HealthStatus{Status: "healthy"}
	if check != nil {
		status = check()
	}
	if !s.healthy.Load() {
		status.Status = "unhealthy"
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	if status.Version == "" {
		status.Version = version
	}
	status.Uptime = time.Since(s.startTime).Round(time.Second).String()
	return status
}

// SetHealthy 设置进程级健康开关
func (s *MetricsServer) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// Stop 停止服务器, 之后存活探针返回 503
func (s *MetricsServer) Stop() {
	s.healthy.Store(false)
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// GetRegistry 获取 registry (用于测试或扩展)
func (s *MetricsServer) GetRegistry() *prometheus.Registry {
	return s.registry
}
