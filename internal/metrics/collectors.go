// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义 - 按快照拉取发送方/接收方/信道状态
// =============================================================================
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrcgq/rdtsim/internal/protocol"
)

// SimCollector 仿真指标收集器, 每个协议版本一个快照提供者
type SimCollector struct {
	providers []StatsProvider
	mu        sync.RWMutex

	// 描述符
	simTimeDesc       *prometheus.Desc
	progressDesc      *prometheus.Desc
	senderStateDesc   *prometheus.Desc
	receiverStateDesc *prometheus.Desc
	senderEventsDesc  *prometheus.Desc
	receiverEvtsDesc  *prometheus.Desc
	deliveredDesc     *prometheus.Desc
	violationsDesc    *prometheus.Desc

	// 信道相关
	channelPacketsDesc *prometheus.Desc
	channelInFlight    *prometheus.Desc
	channelRateDesc    *prometheus.Desc
}

// NewSimCollector 创建收集器
func NewSimCollector(providers ...StatsProvider) *SimCollector {
	return &SimCollector{
		providers: providers,

		simTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sim_time_ticks"),
			"Current virtual time",
			[]string{"variant"}, nil,
		),
		progressDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "progress_ratio"),
			"Fraction of the configured run completed",
			[]string{"variant"}, nil,
		),
		senderStateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sender", "state"),
			"Current sender state (1 = active)",
			[]string{"variant", "state"}, nil,
		),
		receiverStateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "receiver", "state"),
			"Current receiver state (1 = active)",
			[]string{"variant", "state"}, nil,
		),
		senderEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sender", "events_total"),
			"Sender counters by event",
			[]string{"variant", "event"}, nil,
		),
		receiverEvtsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "receiver", "events_total"),
			"Receiver counters by event",
			[]string{"variant", "event"}, nil,
		),
		deliveredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "app", "delivered_total"),
			"Messages delivered in order to the receiving application",
			[]string{"variant"}, nil,
		),
		violationsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "app", "violations_total"),
			"Delivery audit violations",
			[]string{"variant"}, nil,
		),

		channelPacketsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "packets_total"),
			"Channel packets by outcome",
			[]string{"variant", "channel", "outcome"}, nil,
		),
		channelInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "in_flight"),
			"Packets scheduled for delivery",
			[]string{"variant", "channel"}, nil,
		),
		channelRateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "observed_rate"),
			"Observed loss/corruption rate",
			[]string{"variant", "channel", "kind"}, nil,
		),
	}
}

// Add 追加快照提供者
func (c *SimCollector) Add(p StatsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, p)
}

// Describe 实现 prometheus.Collector 接口
func (c *SimCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.simTimeDesc
	ch <- c.progressDesc
	ch <- c.senderStateDesc
	ch <- c.receiverStateDesc
	ch <- c.senderEventsDesc
	ch <- c.receiverEvtsDesc
	ch <- c.deliveredDesc
	ch <- c.violationsDesc
	ch <- c.channelPacketsDesc
	ch <- c.channelInFlight
	ch <- c.channelRateDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *SimCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	providers := make([]StatsProvider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		c.collectSnapshot(ch, p.Snapshot())
	}
}

func (c *SimCollector) collectSnapshot(ch chan<- prometheus.Metric, s Snapshot) {
	v := s.Variant

	ch <- prometheus.MustNewConstMetric(c.simTimeDesc, prometheus.GaugeValue, float64(s.Now), v)
	ch <- prometheus.MustNewConstMetric(c.progressDesc, prometheus.GaugeValue, s.Progress(), v)

	// 当前状态
	for _, st := range []protocol.SenderState{
		protocol.WaitingForCall0, protocol.WaitingForAck0, protocol.WaitingForCall1, protocol.WaitingForAck1,
	} {
		val := 0.0
		if st == s.SenderState {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.senderStateDesc, prometheus.GaugeValue, val, v, st.String())
	}
	for _, st := range []protocol.ReceiverState{protocol.WaitingFor0FromBelow, protocol.WaitingFor1FromBelow} {
		val := 0.0
		if st == s.ReceiverState {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.receiverStateDesc, prometheus.GaugeValue, val, v, st.String())
	}

	snd := s.Sender
	for event, n := range map[string]uint64{
		"submitted":         snd.Submitted,
		"rejected":          snd.Rejected,
		"transmissions":     snd.Transmissions,
		"retransmissions":   snd.Retransmissions,
		"spurious":          snd.Spurious,
		"timeouts":          snd.Timeouts,
		"implicit_timeouts": snd.ImplicitTimeouts,
		"stray_timers":      snd.StrayTimers,
		"expected_acks":     snd.ExpectedAcks,
		"stale_acks":        snd.StaleAcks,
		"corrupt_received":  snd.CorruptReceived,
	} {
		ch <- prometheus.MustNewConstMetric(c.senderEventsDesc, prometheus.CounterValue, float64(n), v, event)
	}

	rcv := s.Receiver
	for event, n := range map[string]uint64{
		"delivered":  rcv.Delivered,
		"duplicates": rcv.Duplicates,
		"corrupt":    rcv.Corrupt,
		"acks_sent":  rcv.AcksSent,
	} {
		ch <- prometheus.MustNewConstMetric(c.receiverEvtsDesc, prometheus.CounterValue, float64(n), v, event)
	}

	ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue, float64(s.Delivered), v)
	ch <- prometheus.MustNewConstMetric(c.violationsDesc, prometheus.CounterValue, float64(s.Violations), v)

	// 信道
	for _, cs := range s.Channels {
		for outcome, n := range map[string]uint64{
			"sent":      cs.Stats.Sent,
			"lost":      cs.Stats.Lost,
			"corrupted": cs.Stats.Corrupted,
			"delivered": cs.Stats.Delivered,
		} {
			ch <- prometheus.MustNewConstMetric(c.channelPacketsDesc, prometheus.CounterValue, float64(n), v, cs.Name, outcome)
		}
		ch <- prometheus.MustNewConstMetric(c.channelInFlight, prometheus.GaugeValue, float64(cs.Stats.InFlight), v, cs.Name)
		ch <- prometheus.MustNewConstMetric(c.channelRateDesc, prometheus.GaugeValue, cs.ObservedLoss, v, cs.Name, "loss")
		ch <- prometheus.MustNewConstMetric(c.channelRateDesc, prometheus.GaugeValue, cs.ObservedCorruption, v, cs.Name, "corruption")
	}
}
