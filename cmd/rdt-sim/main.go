// =============================================================================
// 文件: cmd/rdt-sim/main.go
// 描述: 主程序入口 - 运行单个版本或多版本对比, 可选 Prometheus 指标与事件流
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/mrcgq/rdtsim/internal/config"
	"github.com/mrcgq/rdtsim/internal/metrics"
	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/runner"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("c", defaultConfigPath, "配置文件路径 (不存在时使用默认配置)")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")

	proto := flag.String("protocol", "", "协议版本: rdt2.2/rdt3.0/rdt3.1")
	until := flag.Int64("until", 0, "仿真时长 (tick)")
	seed := flag.Uint64("seed", 0, "随机种子")
	logLevel := flag.String("log", "", "日志级别: debug/info/error/silent")
	compare := flag.String("compare", "", "对比版本 (逗号分隔, all = 全部)")
	metricsListen := flag.String("metrics", "", "启用监控并监听该地址, 如 :9100")
	hold := flag.Bool("hold", false, "仿真结束后保持监控服务直到 Ctrl+C")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	// 加载配置
	cfg, err := loadConfig(*configPath, flagSet("c"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	// 命令行覆盖
	if *proto != "" {
		cfg.Protocol = *proto
	}
	if *until > 0 {
		cfg.Until = *until
	}
	if flagSet("seed") {
		cfg.Seed = *seed
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *compare != "" {
		cfg.Compare.Enabled = true
		if *compare != "all" {
			cfg.Compare.Variants = splitCommaSeparated(*compare)
		}
	}
	if *metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *metricsListen
	}
	if *hold {
		cfg.Metrics.Hold = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	logger := cfg.NewLogger()
	for _, w := range cfg.Warnings() {
		logger.Log(sim.LogInfo, 0, "CONFIG", "警告: %s", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n正在关闭...")
			cancel()
		case <-ctx.Done():
		}
	}()

	variants := []protocol.Variant{cfg.Variant()}
	if cfg.Compare.Enabled {
		variants, _ = cfg.CompareVariants()
	}

	opts := []runner.Option{runner.WithLogger(logger)}

	// 创建 Metrics 服务器
	var metricsServer *metrics.MetricsServer
	var hub *metrics.TraceHub
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		metricsServer.SetVersion(Version)

		// 所有版本共享一份历史, 新订阅者先回放最近事件
		shared := trace.NewHistory(cfg.Trace.HistorySize)
		hub = metrics.NewTraceHub(shared)
		metricsServer.SetTraceHandler(cfg.Metrics.TracePath, hub)

		simMetrics := metrics.NewSimMetrics(metricsServer.GetRegistry())
		opts = append(opts,
			runner.WithMetrics(simMetrics),
			runner.WithTrace(shared),
			runner.WithTrace(hub),
		)
	}

	sims, err := runner.NewComparison(cfg, variants, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建仿真失败: %v\n", err)
		return 1
	}

	if metricsServer != nil {
		providers := make([]metrics.StatsProvider, len(sims))
		for i, s := range sims {
			providers[i] = s
		}
		metricsServer.MustRegisterCollector(metrics.NewSimCollector(providers...))
		metricsServer.SetHealthCheck(metrics.SimHealthCheck(providers...))

		if err := metricsServer.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Metrics 启动失败: %v\n", err)
			return 1
		}
		defer metricsServer.Stop()
		defer hub.Close()
	}

	printBanner(cfg, variants, metricsServer)

	reports, err := runner.Compare(ctx, sims...)
	for _, r := range reports {
		if r != nil {
			fmt.Print(r.String())
		}
	}
	if len(reports) > 1 {
		fmt.Println()
		fmt.Print(runner.FormatComparison(reports))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "仿真被中断")
		} else {
			fmt.Fprintf(os.Stderr, "仿真失败: %v\n", err)
		}
		return 1
	}

	if metricsServer != nil && cfg.Metrics.Hold {
		fmt.Printf("仿真结束, 监控服务保持在 %s, 按 Ctrl+C 退出\n", metricsServer.Addr())
		<-ctx.Done()
	}

	for _, r := range reports {
		if !r.OK() {
			return 2
		}
	}
	return 0
}

// loadConfig 未显式指定且默认文件不存在时使用默认配置
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
	}
	return config.Load(path)
}

// flagSet 命令行是否显式给出了该参数
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// splitCommaSeparated 分割逗号分隔的字符串
func splitCommaSeparated(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func printVersion() {
	fmt.Printf("rdt-sim v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("支持版本:")
	fmt.Println("  - rdt2.2 : 只处理损坏, 无计时器")
	fmt.Println("  - rdt3.0 : 处理损坏与丢失, 空闲时收到分组视为超时")
	fmt.Println("  - rdt3.1 : 处理损坏与丢失, 只在计时器到期时重传")
}

func printBanner(cfg *config.Config, variants []protocol.Variant, ms *metrics.MetricsServer) {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║         rdt-sim - 停等式可靠传输协议仿真                         ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  协议版本: %-53s ║\n", strings.Join(names, ", "))
	fmt.Printf("║  仿真时长: %-53s ║\n", fmt.Sprintf("%d tick (seed=%d)", cfg.Until, cfg.Seed))
	fmt.Printf("║  数据信道: %-53s ║\n", formatChannel(cfg.DataChannel))
	fmt.Printf("║  ACK 信道: %-53s ║\n", formatChannel(cfg.AckChannel))
	fmt.Printf("║  超时: %-57s ║\n", fmt.Sprintf("%d tick", cfg.Timer.Timeout))
	if ms != nil {
		fmt.Println("╠══════════════════════════════════════════════════════════════════╣")
		fmt.Printf("║  Metrics: %-54s ║\n", ms.Addr()+cfg.Metrics.Path)
		fmt.Printf("║  事件流: %-55s ║\n", ms.Addr()+cfg.Metrics.TracePath)
	}
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func formatChannel(c config.ChannelConfig) string {
	return fmt.Sprintf("Pc=%.2f Pl=%.2f delay=%d..%d (%s, %s)",
		c.CorruptProb, c.LossProb, c.DelayMin, c.DelayMax, c.DelayMode, c.Corruption)
}
