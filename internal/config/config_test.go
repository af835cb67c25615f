// =============================================================================
// 文件: internal/config/config_test.go
// 描述: 配置鲁棒性测试 - 确保错误配置能在启动前被拦截
// =============================================================================
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
)

// =============================================================================
// 默认值测试
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("基础配置默认值", func(t *testing.T) {
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel 默认值错误: got %s, want info", cfg.LogLevel)
		}
		if cfg.Protocol != "rdt3.1" {
			t.Errorf("Protocol 默认值错误: got %s, want rdt3.1", cfg.Protocol)
		}
		if cfg.Until != 10000 {
			t.Errorf("Until 默认值错误: got %d, want 10000", cfg.Until)
		}
		if cfg.Timer.Timeout != 10 {
			t.Errorf("Timer.Timeout 默认值错误: got %d, want 10", cfg.Timer.Timeout)
		}
	})

	t.Run("信道默认值", func(t *testing.T) {
		d, a := cfg.DataChannel, cfg.AckChannel
		if d.CorruptProb != 0.5 || d.LossProb != 0.4 || d.DelayMin != 1 || d.DelayMax != 7 {
			t.Errorf("DataChannel 默认值错误: %+v", d)
		}
		if a.CorruptProb != 0.2 || a.LossProb != 0.36 || a.DelayMin != 1 || a.DelayMax != 4 {
			t.Errorf("AckChannel 默认值错误: %+v", a)
		}
		if d.DelayMode != "fixed" || d.Corruption != "marker" {
			t.Errorf("DataChannel 模式默认值错误: %+v", d)
		}
	})

	t.Run("监控默认值", func(t *testing.T) {
		if cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled 默认应为 false")
		}
		if cfg.Metrics.Path != "/metrics" || cfg.Metrics.TracePath != "/trace" {
			t.Errorf("Metrics 路径默认值错误: %+v", cfg.Metrics)
		}
	})

	t.Run("默认配置可通过验证", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("默认配置应通过验证: %v", err)
		}
	})
}

// =============================================================================
// 验证测试
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"未知协议", func(c *Config) { c.Protocol = "rdt4.0" }, "protocol"},
		{"仿真时长为 0", func(c *Config) { c.Until = 0 }, "until"},
		{"超时为 0", func(c *Config) { c.Timer.Timeout = 0 }, "timer.timeout"},
		{"丢失概率越界", func(c *Config) { c.DataChannel.LossProb = 1.2 }, "data_channel"},
		{"损坏概率为负", func(c *Config) { c.AckChannel.CorruptProb = -0.5 }, "ack_channel"},
		{"延迟区间颠倒", func(c *Config) { c.DataChannel.DelayMin = 9 }, "data_channel"},
		{"未知延迟模式", func(c *Config) { c.AckChannel.DelayMode = "normal" }, "ack_channel"},
		{"未知损坏方式", func(c *Config) { c.DataChannel.Corruption = "xor" }, "data_channel"},
		{"重试间隔为 0", func(c *Config) { c.Application.RetryInterval = 0 }, "retry_interval"},
		{"日志级别", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
		{"监控端口", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = ":abc" }, "metrics"},
		{"监控路径冲突", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.TracePath = "/metrics"
		}, "路径冲突"},
		{"对比版本为空", func(c *Config) {
			c.Compare.Enabled = true
			c.Compare.Variants = nil
		}, "compare.variants"},
		{"对比版本非法", func(c *Config) {
			c.Compare.Enabled = true
			c.Compare.Variants = []string{"rdt3.1", "tcp"}
		}, "compare.variants"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("应该验证失败")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("错误应包装 ErrInvalidConfig: %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("错误信息应包含 %q: %v", tt.errMsg, err)
			}
		})
	}
}

func TestMetricsValidationSkippedWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Listen = "not-a-port"
	if err := cfg.Validate(); err != nil {
		t.Errorf("未启用监控时不应校验监控配置: %v", err)
	}
}

func TestWarnings(t *testing.T) {
	t.Run("rdt2.2 遇到丢包", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Protocol = "rdt2.2"
		warns := cfg.Warnings()
		if len(warns) != 1 || !strings.Contains(warns[0], "停滞") {
			t.Errorf("应警告死锁: %v", warns)
		}
	})

	t.Run("rdt2.2 无丢包", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Protocol = "rdt2.2"
		cfg.DataChannel.LossProb = 0
		cfg.AckChannel.LossProb = 0
		if warns := cfg.Warnings(); len(warns) != 0 {
			t.Errorf("不应有警告: %v", warns)
		}
	})

	t.Run("超时小于往返延迟", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timer.Timeout = 5
		warns := cfg.Warnings()
		if len(warns) != 1 || !strings.Contains(warns[0], "过早重传") {
			t.Errorf("应警告过早重传: %v", warns)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]int{
		"debug":  sim.LogDebug,
		"INFO":   sim.LogInfo,
		"":       sim.LogInfo,
		"warn":   sim.LogError,
		"error":  sim.LogError,
		"silent": sim.LogSilent,
		"off":    sim.LogSilent,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("trace"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("未知级别应返回 ErrInvalidLogLevel: %v", err)
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":9100", 9100, false},
		{"127.0.0.1:9100", 9100, false},
		{"[::1]:9100", 9100, false},
		{"9100", 9100, false},
		{"localhost", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePort(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePort(%q) err = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePort(%q) = %d, want %d", tt.addr, got, tt.want)
		}
	}
}

// =============================================================================
// 加载测试
// =============================================================================

func TestLoad(t *testing.T) {
	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load("/nonexistent/path/config.yaml")
		if err == nil {
			t.Error("加载不存在的文件应该报错")
		}
	})

	t.Run("部分覆盖", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")

		configContent := `
protocol: "rdt3.0"
seed: 42
until: 500

data_channel:
  loss_prob: 0.1
  delay_mode: "uniform"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("创建临时配置文件失败: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("加载配置文件失败: %v", err)
		}

		if cfg.Variant() != protocol.RDT30 {
			t.Errorf("Protocol 错误: got %s", cfg.Variant())
		}
		if cfg.Seed != 42 || cfg.Until != 500 {
			t.Errorf("Seed/Until 错误: %d %d", cfg.Seed, cfg.Until)
		}
		if cfg.DataChannel.LossProb != 0.1 || cfg.DataChannel.DelayMode != "uniform" {
			t.Errorf("DataChannel 覆盖错误: %+v", cfg.DataChannel)
		}
		// 未出现的字段保持默认
		if cfg.DataChannel.CorruptProb != 0.5 || cfg.AckChannel.LossProb != 0.36 {
			t.Errorf("未覆盖字段应保持默认: %+v %+v", cfg.DataChannel, cfg.AckChannel)
		}
	})

	t.Run("无效YAML格式", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.yaml")

		invalidContent := `
protocol: "rdt3.1"
  invalid: indentation
`
		if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
			t.Fatalf("创建临时配置文件失败: %v", err)
		}

		if _, err := Load(configPath); err == nil {
			t.Error("解析无效YAML应该报错")
		}
	})

	t.Run("验证失败", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "bad.yaml")

		if err := os.WriteFile(configPath, []byte("until: -1\n"), 0644); err != nil {
			t.Fatalf("创建临时配置文件失败: %v", err)
		}

		_, err := Load(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("应返回 ErrInvalidConfig: %v", err)
		}
	})
}

func TestExampleConfig(t *testing.T) {
	t.Run("示例配置可解析且等于默认值", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := yaml.Unmarshal([]byte(GenerateExampleConfig()), cfg); err != nil {
			t.Fatalf("解析示例配置失败: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("示例配置应通过验证: %v", err)
		}

		def := DefaultConfig()
		if cfg.DataChannel != def.DataChannel || cfg.AckChannel != def.AckChannel || cfg.Timer != def.Timer {
			t.Errorf("示例配置与默认值不一致:\n%+v\n%+v", cfg, def)
		}
	})

	t.Run("写入文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "example.yaml")
		if err := WriteExampleConfig(path); err != nil {
			t.Fatalf("WriteExampleConfig: %v", err)
		}
		if _, err := Load(path); err != nil {
			t.Errorf("写入的示例配置应可加载: %v", err)
		}
	})
}

func TestToChannel(t *testing.T) {
	cfg := DefaultConfig()
	ch := cfg.DataChannel.ToChannel("DATA_CHANNEL", 7)

	if ch.Name != "DATA_CHANNEL" || ch.Seed != 7 {
		t.Errorf("Name/Seed 错误: %+v", ch)
	}
	if ch.DelayMin != 1 || ch.DelayMax != 7 || ch.LossProb != 0.4 {
		t.Errorf("字段转换错误: %+v", ch)
	}
}
