// =============================================================================
// 文件: internal/runner/simulation.go
// 描述: 仿真驱动 - 按配置组装调度器、信道、发送方/接收方与应用, 运行并生成报告
// =============================================================================
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrcgq/rdtsim/internal/app"
	"github.com/mrcgq/rdtsim/internal/channel"
	"github.com/mrcgq/rdtsim/internal/config"
	"github.com/mrcgq/rdtsim/internal/metrics"
	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

// ComponentName 日志组件名
const ComponentName = "RUNNER"

// DefaultPublishInterval 快照发布间隔 (tick)
const DefaultPublishInterval sim.Time = 100

var (
	ErrAlreadyRan = fmt.Errorf("simulation already ran")
	ErrNilConfig  = fmt.Errorf("nil config")
)

// Option 仿真选项
type Option func(*Simulation)

// WithLogger 设置日志器
func WithLogger(l *sim.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithTrace 追加事件接收者 (如 WebSocket 广播)
func WithTrace(sink trace.Sink) Option {
	return func(s *Simulation) { s.extra = append(s.extra, sink) }
}

// WithMetrics 事件计数与交付延迟写入 Prometheus
func WithMetrics(m *metrics.SimMetrics) Option {
	return func(s *Simulation) { s.metrics = m }
}

// WithHistory 使用外部事件历史 (默认按配置创建)
func WithHistory(h *trace.History) Option {
	return func(s *Simulation) { s.history = h }
}

// WithPublishInterval 设置快照发布间隔
func WithPublishInterval(d sim.Time) Option {
	return func(s *Simulation) {
		if d > 0 {
			s.publishEvery = d
		}
	}
}

// Simulation 一次仿真 (单个协议版本)
type Simulation struct {
	cfg     *config.Config
	variant protocol.Variant

	sched    *sim.Scheduler
	sender   *protocol.Sender
	receiver *protocol.Receiver
	dataCh   *channel.Unreliable
	ackCh    *channel.Unreliable
	sendApp  *app.Sending
	recvApp  *app.Receiving

	logger  *sim.Logger
	history *trace.History
	extra   []trace.Sink
	metrics *metrics.SimMetrics

	latency      latencyStats
	rtt          *RTTEstimator
	publishEvery sim.Time

	snap   metrics.Snapshot
	snapMu sync.RWMutex

	ran bool
}

type latencyStats struct {
	count uint64
	sum   sim.Time
	max   sim.Time
}

// New 按配置组装仿真
func New(cfg *config.Config, variant protocol.Variant, opts ...Option) (*Simulation, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	policy, err := protocol.PolicyFor(variant)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:          cfg,
		variant:      variant,
		sched:        sim.NewScheduler(),
		publishEvery: DefaultPublishInterval,
		rtt:          NewRTTEstimator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = cfg.NewHistory()
	}

	sinks := trace.Fanout{s.history, s.rtt}
	if s.metrics != nil {
		sinks = append(sinks, s.metrics)
	}
	sinks = append(sinks, s.extra...)
	sink := trace.Tag(string(variant), sinks)

	// 信道
	dataCfg := cfg.DataChannel.ToChannel(channel.DataChannelName, cfg.Seed)
	dataCfg.Logger, dataCfg.Trace = s.logger, sink
	if s.dataCh, err = channel.NewUnreliable(s.sched, dataCfg); err != nil {
		return nil, fmt.Errorf("创建数据信道失败: %w", err)
	}
	ackCfg := cfg.AckChannel.ToChannel(channel.AckChannelName, cfg.Seed+1)
	ackCfg.Logger, ackCfg.Trace = s.logger, sink
	if s.ackCh, err = channel.NewUnreliable(s.sched, ackCfg); err != nil {
		return nil, fmt.Errorf("创建 ACK 信道失败: %w", err)
	}

	// 协议实体与应用
	s.sender = protocol.NewSender(s.sched, s.dataCh, &protocol.SenderConfig{
		Policy:  policy,
		Timeout: sim.Time(cfg.Timer.Timeout),
		Logger:  s.logger,
		Trace:   sink,
	})
	s.recvApp = app.NewReceiving(s.sched, app.ReceivingConfig{
		Logger:    s.logger,
		Trace:     sink,
		OnDeliver: s.onDeliver,
	})
	s.receiver = protocol.NewReceiver(s.sched, s.ackCh, s.recvApp, &protocol.ReceiverConfig{
		Logger: s.logger,
		Trace:  sink,
	})
	s.sendApp = app.NewSending(s.sched, s.sender, app.SendingConfig{
		Interval:      sim.Time(cfg.Application.Interval),
		RetryInterval: sim.Time(cfg.Application.RetryInterval),
		MaxMessages:   cfg.Application.MaxMessages,
		Logger:        s.logger,
	})

	// 正向: 发送方 -> 数据信道 -> 接收方; 反向: 接收方 -> ACK 信道 -> 发送方
	s.dataCh.SetReceiver(s.receiver)
	s.ackCh.SetReceiver(s.sender)

	s.publish(false)
	return s, nil
}

// Variant 协议版本
func (s *Simulation) Variant() protocol.Variant {
	return s.variant
}

// History 事件历史
func (s *Simulation) History() *trace.History {
	return s.history
}

// Run 运行到配置的 until, 返回报告。ctx 取消时返回部分报告和错误。
func (s *Simulation) Run(ctx context.Context) (*Report, error) {
	if s.ran {
		return nil, ErrAlreadyRan
	}
	s.ran = true

	until := sim.Time(s.cfg.Until)
	s.log(sim.LogInfo, "开始仿真 %s (until=%d, seed=%d)", s.variant, until, s.cfg.Seed)

	s.sendApp.Start()
	s.schedulePublish()

	err := s.sched.Run(ctx, until)
	s.publish(true)

	report := s.buildReport()
	if err != nil {
		s.log(sim.LogError, "仿真中断: %v", err)
		return report, fmt.Errorf("%s 仿真中断: %w", s.variant, err)
	}

	s.log(sim.LogInfo, "仿真结束: 交付 %d 条, 重传 %d 次, 违规 %d 次",
		report.Delivered, report.Sender.Retransmissions, len(report.Violations))
	if report.Stalled {
		s.log(sim.LogInfo, "发送方停滞在 %s: 分组丢失且没有计时器", report.SenderState)
	}
	return report, nil
}

// Snapshot 实现 metrics.StatsProvider, 可从其他 goroutine 调用
func (s *Simulation) Snapshot() metrics.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	snap := s.snap
	snap.Channels = append([]metrics.ChannelSnapshot(nil), s.snap.Channels...)
	return snap
}

func (s *Simulation) schedulePublish() {
	s.sched.Schedule(s.publishEvery, func() {
		s.publish(false)
		s.schedulePublish()
	})
}

// publish 在仿真 goroutine 中复制一份状态
func (s *Simulation) publish(finished bool) {
	snap := metrics.Snapshot{
		Variant:       string(s.variant),
		Now:           int64(s.sched.Now()),
		Until:         s.cfg.Until,
		Finished:      finished,
		SenderState:   s.sender.State(),
		ReceiverState: s.receiver.State(),
		Sender:        s.sender.Stats(),
		Receiver:      s.receiver.Stats(),
		Delivered:     s.recvApp.Received(),
		Violations:    len(s.recvApp.Violations()),
	}
	for _, ch := range []*channel.Unreliable{s.dataCh, s.ackCh} {
		snap.Channels = append(snap.Channels, metrics.ChannelSnapshot{
			Name:               ch.Name(),
			Stats:              ch.Stats(),
			ObservedLoss:       ch.ObservedLoss().Observed,
			ObservedCorruption: ch.ObservedCorruption().Observed,
		})
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

func (s *Simulation) onDeliver(n int, at sim.Time) {
	submitted, ok := s.sendApp.SubmittedAt(n)
	if !ok {
		return
	}
	d := at - submitted
	s.latency.count++
	s.latency.sum += d
	if d > s.latency.max {
		s.latency.max = d
	}
	if s.metrics != nil {
		s.metrics.ObserveLatency(string(s.variant), d)
	}
}

// stalled 发送方在等待 ACK, 但没有计时器且信道中没有分组: 永远不会再前进
func (s *Simulation) stalled() bool {
	st := s.sender.State()
	if st != protocol.WaitingForAck0 && st != protocol.WaitingForAck1 {
		return false
	}
	return !s.sender.TimerRunning() && s.dataCh.Stats().InFlight == 0 && s.ackCh.Stats().InFlight == 0
}

func (s *Simulation) log(level int, format string, args ...interface{}) {
	s.logger.Log(level, s.sched.Now(), ComponentName, "["+string(s.variant)+"] "+format, args...)
}
