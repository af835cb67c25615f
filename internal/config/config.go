// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 仿真参数、信道参数、监控与多版本对比, 启动前完成校验
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrcgq/rdtsim/internal/channel"
	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

var (
	ErrInvalidConfig   = fmt.Errorf("invalid config")
	ErrInvalidLogLevel = fmt.Errorf("invalid log level")
)

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`
	Protocol string `yaml:"protocol"`
	Seed     uint64 `yaml:"seed"`
	Until    int64  `yaml:"until"`

	Timer       TimerConfig       `yaml:"timer"`
	DataChannel ChannelConfig     `yaml:"data_channel"`
	AckChannel  ChannelConfig     `yaml:"ack_channel"`
	Application ApplicationConfig `yaml:"application"`
	Trace       TraceConfig       `yaml:"trace"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Compare     CompareConfig     `yaml:"compare"`
}

// TimerConfig 重传计时器配置 (rdt3.x)
type TimerConfig struct {
	Timeout int64 `yaml:"timeout"`
}

// ChannelConfig 单向信道配置
type ChannelConfig struct {
	CorruptProb float64 `yaml:"corrupt_prob"`
	LossProb    float64 `yaml:"loss_prob"`
	DelayMin    int64   `yaml:"delay_min"`
	DelayMax    int64   `yaml:"delay_max"`
	DelayMode   string  `yaml:"delay_mode"` // fixed, uniform
	Corruption  string  `yaml:"corruption"` // marker, bitflip
}

// ApplicationConfig 发送方应用配置
type ApplicationConfig struct {
	Interval      int64 `yaml:"interval"`
	RetryInterval int64 `yaml:"retry_interval"`
	MaxMessages   int   `yaml:"max_messages"`
}

// TraceConfig 事件追踪配置
type TraceConfig struct {
	HistorySize int `yaml:"history_size"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	TracePath   string `yaml:"trace_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
	Hold        bool   `yaml:"hold"` // 仿真结束后保持监控服务, 直到收到信号
}

// CompareConfig 多版本对比配置
type CompareConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Variants []string `yaml:"variants"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Protocol: string(protocol.RDT31),
		Seed:     1,
		Until:    10000,

		Timer: TimerConfig{
			Timeout: int64(protocol.DefaultTimeout),
		},

		DataChannel: ChannelConfig{
			CorruptProb: 0.5,
			LossProb:    0.4,
			DelayMin:    1,
			DelayMax:    7,
			DelayMode:   string(channel.DelayFixed),
			Corruption:  string(channel.CorruptMarker),
		},

		AckChannel: ChannelConfig{
			CorruptProb: 0.2,
			LossProb:    0.36,
			DelayMin:    1,
			DelayMax:    4,
			DelayMode:   string(channel.DelayFixed),
			Corruption:  string(channel.CorruptMarker),
		},

		Application: ApplicationConfig{
			Interval:      1,
			RetryInterval: 1,
		},

		Trace: TraceConfig{
			HistorySize: 1000,
		},

		Metrics: MetricsConfig{
			Enabled:     false,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			TracePath:   "/trace",
			EnablePprof: false,
		},

		Compare: CompareConfig{
			Enabled:  false,
			Variants: []string{string(protocol.RDT22), string(protocol.RDT30), string(protocol.RDT31)},
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, err := protocol.ParseVariant(c.Protocol); err != nil {
		return fmt.Errorf("%w: protocol: %v", ErrInvalidConfig, err)
	}

	if c.Until <= 0 {
		return fmt.Errorf("%w: until 必须大于 0", ErrInvalidConfig)
	}

	if c.Timer.Timeout < 1 {
		return fmt.Errorf("%w: timer.timeout 必须至少为 1", ErrInvalidConfig)
	}

	if err := c.DataChannel.ToChannel(channel.DataChannelName, 0).Validate(); err != nil {
		return fmt.Errorf("%w: data_channel: %v", ErrInvalidConfig, err)
	}
	if err := c.AckChannel.ToChannel(channel.AckChannelName, 0).Validate(); err != nil {
		return fmt.Errorf("%w: ack_channel: %v", ErrInvalidConfig, err)
	}

	if c.Application.Interval < 0 {
		return fmt.Errorf("%w: application.interval 不能为负数", ErrInvalidConfig)
	}
	if c.Application.RetryInterval < 1 {
		return fmt.Errorf("%w: application.retry_interval 必须至少为 1", ErrInvalidConfig)
	}
	if c.Application.MaxMessages < 0 {
		return fmt.Errorf("%w: application.max_messages 不能为负数", ErrInvalidConfig)
	}

	if c.Trace.HistorySize < 0 {
		return fmt.Errorf("%w: trace.history_size 不能为负数", ErrInvalidConfig)
	}

	if c.Metrics.Enabled {
		if err := c.validateMetricsConfig(); err != nil {
			return fmt.Errorf("%w: metrics: %v", ErrInvalidConfig, err)
		}
	}

	if c.Compare.Enabled {
		if len(c.Compare.Variants) == 0 {
			return fmt.Errorf("%w: compare.variants 不能为空", ErrInvalidConfig)
		}
		if _, err := c.CompareVariants(); err != nil {
			return fmt.Errorf("%w: compare.variants: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

func (c *Config) validateMetricsConfig() error {
	port, err := parsePort(c.Metrics.Listen)
	if err != nil {
		return fmt.Errorf("listen 端口格式错误: %w", err)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("listen 端口超出范围: %d", port)
	}

	paths := map[string]string{}
	for name, p := range map[string]string{
		"path":        c.Metrics.Path,
		"health_path": c.Metrics.HealthPath,
		"trace_path":  c.Metrics.TracePath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s 必须以 / 开头: %q", name, p)
		}
		if other, ok := paths[p]; ok {
			return fmt.Errorf("%s 与 %s 路径冲突: %s", name, other, p)
		}
		paths[p] = name
	}
	return nil
}

// Warnings 合法但会导致预期之外结果的组合
func (c *Config) Warnings() []string {
	var warns []string

	v, err := protocol.ParseVariant(c.Protocol)
	if err != nil {
		return nil
	}
	policy := protocol.MustPolicy(v)

	if !policy.RecoversFromLoss() && (c.DataChannel.LossProb > 0 || c.AckChannel.LossProb > 0) {
		warns = append(warns, fmt.Sprintf("%s 没有计时器, 信道丢包 (data=%.2f, ack=%.2f) 会导致发送方永久停滞",
			v, c.DataChannel.LossProb, c.AckChannel.LossProb))
	}

	if policy.UsesTimer {
		rtt := c.DataChannel.DelayMax + c.AckChannel.DelayMax
		if c.Timer.Timeout < rtt {
			warns = append(warns, fmt.Sprintf("timer.timeout=%d 小于最大往返延迟 %d, 会产生过早重传",
				c.Timer.Timeout, rtt))
		}
	}

	return warns
}

// Variant 解析后的协议版本
func (c *Config) Variant() protocol.Variant {
	v, err := protocol.ParseVariant(c.Protocol)
	if err != nil {
		return protocol.RDT31
	}
	return v
}

// CompareVariants 解析对比版本列表
func (c *Config) CompareVariants() ([]protocol.Variant, error) {
	out := make([]protocol.Variant, 0, len(c.Compare.Variants))
	for _, s := range c.Compare.Variants {
		v, err := protocol.ParseVariant(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ToChannel 转换为 channel 包的配置类型
func (c ChannelConfig) ToChannel(name string, seed uint64) channel.Config {
	return channel.Config{
		Name:           name,
		CorruptProb:    c.CorruptProb,
		LossProb:       c.LossProb,
		DelayMin:       sim.Time(c.DelayMin),
		DelayMax:       sim.Time(c.DelayMax),
		DelayMode:      channel.DelayMode(c.DelayMode),
		CorruptionMode: channel.CorruptionMode(c.Corruption),
		Seed:           seed,
	}
}

// NewLogger 按 log_level 创建日志器
func (c *Config) NewLogger() *sim.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = sim.LogInfo
	}
	return sim.NewLogger(os.Stdout, level)
}

// NewHistory 按 trace.history_size 创建事件历史
func (c *Config) NewHistory() *trace.History {
	return trace.NewHistory(c.Trace.HistorySize)
}

// ParseLogLevel 解析日志级别
func ParseLogLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return sim.LogDebug, nil
	case "info", "":
		return sim.LogInfo, nil
	case "warn", "error":
		return sim.LogError, nil
	case "silent", "off", "none":
		return sim.LogSilent, nil
	default:
		return 0, fmt.Errorf("%w: %q (支持: debug, info, error, silent)", ErrInvalidLogLevel, s)
	}
}

// parsePort 解析端口号
func parsePort(addr string) (int, error) {
	if strings.HasPrefix(addr, ":") {
		return strconv.Atoi(addr[1:])
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strconv.Atoi(addr)
	}
	return strconv.Atoi(portStr)
}

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# rdt-sim 配置文件示例
# =============================================================================

# 基础配置
log_level: "info"                   # 日志级别: debug, info, error, silent
protocol: "rdt3.1"                  # 协议版本: rdt2.2, rdt3.0, rdt3.1
seed: 1                             # 随机种子 (相同种子结果可复现)
until: 10000                        # 仿真时长 (tick)

# 重传计时器 (rdt2.2 忽略)
timer:
  timeout: 10                       # 超时 (tick)

# 数据信道 (发送方 -> 接收方)
data_channel:
  corrupt_prob: 0.5                 # 损坏概率
  loss_prob: 0.4                    # 丢失概率
  delay_min: 1                      # 最小延迟 (tick)
  delay_max: 7                      # 最大延迟 (tick)
  delay_mode: "fixed"               # fixed: 建立时抽取一次; uniform: 每个分组抽取, 可能乱序
  corruption: "marker"              # marker: 替换载荷; bitflip: 翻转一位

# ACK 信道 (接收方 -> 发送方)
ack_channel:
  corrupt_prob: 0.2
  loss_prob: 0.36
  delay_min: 1
  delay_max: 4
  delay_mode: "fixed"
  corruption: "marker"

# 发送方应用
application:
  interval: 1                       # 提交成功后的间隔 (tick)
  retry_interval: 1                 # 被拒绝后的重试间隔 (tick)
  max_messages: 0                   # 0 = 不限

# 事件追踪
trace:
  history_size: 1000                # 保留最近的事件数

# 监控
metrics:
  enabled: false
  listen: ":9100"
  path: "/metrics"
  health_path: "/health"
  trace_path: "/trace"              # WebSocket 事件流
  enable_pprof: false
  hold: false                       # 仿真结束后保持服务直到 Ctrl+C

# 多版本对比 (相同配置与种子并发运行)
compare:
  enabled: false
  variants: ["rdt2.2", "rdt3.0", "rdt3.1"]
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
