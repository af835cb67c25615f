// =============================================================================
// 文件: internal/runner/report.go
// 描述: 仿真报告 - 各组件统计、吞吐量、延迟与交付违规
// =============================================================================
package runner

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mrcgq/rdtsim/internal/app"
	"github.com/mrcgq/rdtsim/internal/channel"
	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
)

// Report 仿真报告
type Report struct {
	Variant protocol.Variant
	Seed    uint64
	Until   sim.Time
	EndTime sim.Time
	Events  uint64

	SenderState   protocol.SenderState
	ReceiverState protocol.ReceiverState
	Sender        protocol.SenderStats
	Receiver      protocol.ReceiverStats
	SendingApp    app.SendingStats
	ReceivingApp  app.ReceivingStats

	Channels []ChannelReport

	Delivered   int
	Throughput  float64 // 每 1000 tick 交付的消息数
	MeanLatency float64
	MaxLatency  sim.Time
	RTT         RTTStats

	Violations []app.Violation
	Stalled    bool
}

// ChannelReport 信道报告
type ChannelReport struct {
	Name       string
	Stats      channel.Stats
	Loss       channel.LossStats
	Corruption channel.LossStats
}

// OK 没有交付违规
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (s *Simulation) buildReport() *Report {
	r := &Report{
		Variant:       s.variant,
		Seed:          s.cfg.Seed,
		Until:         sim.Time(s.cfg.Until),
		EndTime:       s.sched.Now(),
		Events:        s.sched.Processed(),
		SenderState:   s.sender.State(),
		ReceiverState: s.receiver.State(),
		Sender:        s.sender.Stats(),
		Receiver:      s.receiver.Stats(),
		SendingApp:    s.sendApp.Stats(),
		ReceivingApp:  s.recvApp.Stats(),
		Delivered:     s.recvApp.Received(),
		MaxLatency:    s.latency.max,
		RTT:           s.rtt.Stats(),
		Violations:    s.recvApp.Violations(),
		Stalled:       s.stalled(),
	}
	for _, ch := range []*channel.Unreliable{s.dataCh, s.ackCh} {
		r.Channels = append(r.Channels, ChannelReport{
			Name:       ch.Name(),
			Stats:      ch.Stats(),
			Loss:       ch.ObservedLoss(),
			Corruption: ch.ObservedCorruption(),
		})
	}
	if r.EndTime > 0 {
		r.Throughput = float64(r.Delivered) * 1000 / float64(r.EndTime)
	}
	if s.latency.count > 0 {
		r.MeanLatency = float64(s.latency.sum) / float64(s.latency.count)
	}
	return r
}

func (r *Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s (seed=%d, t=%d/%d, events=%d) ===\n", r.Variant, r.Seed, r.EndTime, r.Until, r.Events)
	fmt.Fprintf(&b, "交付: %d 条, 吞吐量 %.2f 条/1000 tick, 平均延迟 %.1f, 最大延迟 %d\n",
		r.Delivered, r.Throughput, r.MeanLatency, r.MaxLatency)
	fmt.Fprintf(&b, "发送方: 状态 %s, 提交 %d, 拒绝 %d, 重传 %d (无效 %d), 超时 %d, 隐式超时 %d, 错误 ACK %d, 损坏 ACK %d\n",
		r.SenderState, r.Sender.Submitted, r.Sender.Rejected, r.Sender.Retransmissions, r.Sender.Spurious,
		r.Sender.Timeouts, r.Sender.ImplicitTimeouts, r.Sender.StaleAcks, r.Sender.CorruptReceived)
	fmt.Fprintf(&b, "接收方: 状态 %s, 交付 %d, 重复 %d, 损坏 %d, ACK %d\n",
		r.ReceiverState, r.Receiver.Delivered, r.Receiver.Duplicates, r.Receiver.Corrupt, r.Receiver.AcksSent)
	if r.RTT.Samples > 0 {
		fmt.Fprintf(&b, "RTT: 样本 %d (跳过 %d), 最小 %d, 最大 %d, SRTT %.1f, RTTVAR %.1f, 建议超时 %d\n",
			r.RTT.Samples, r.RTT.Skipped, r.RTT.Min, r.RTT.Max, r.RTT.Smoothed, r.RTT.Variance, r.RTT.Suggested)
	}
	for _, c := range r.Channels {
		fmt.Fprintf(&b, "%s: 发送 %d, 丢失 %d (%.3f), 损坏 %d (%.3f), 送达 %d\n",
			c.Name, c.Stats.Sent, c.Stats.Lost, c.Loss.Observed, c.Stats.Corrupted, c.Corruption.Observed, c.Stats.Delivered)
	}
	if r.Stalled {
		fmt.Fprintf(&b, "发送方停滞: 分组丢失后没有计时器可恢复\n")
	}
	if len(r.Violations) > 0 {
		fmt.Fprintf(&b, "交付违规 %d 次:\n", len(r.Violations))
		for _, v := range r.Violations {
			fmt.Fprintf(&b, "  %s\n", v)
		}
	}
	return b.String()
}

// FormatComparison 多版本对比表
func FormatComparison(reports []*Report) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(w, "variant\tdelivered\tthroughput\tretransmit\tspurious\ttimeouts\timplicit\tmean_lat\tsrtt\tstalled\tviolations\t")
	for _, r := range reports {
		if r == nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%d\t%d\t%d\t%d\t%.1f\t%.1f\t%v\t%d\t\n",
			r.Variant, r.Delivered, r.Throughput, r.Sender.Retransmissions, r.Sender.Spurious,
			r.Sender.Timeouts, r.Sender.ImplicitTimeouts, r.MeanLatency, r.RTT.Smoothed, r.Stalled, len(r.Violations))
	}
	w.Flush()
	return b.String()
}
