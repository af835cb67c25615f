// =============================================================================
// 文件: internal/runner/rtt.go
// 描述: 往返时间估算 (RFC 6298), 从发送方事件中采样, 只采未重传的分组 (Karn)
// =============================================================================
package runner

import (
	"math"

	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

const (
	rttAlpha = 0.125 // SRTT 平滑因子 (1/8)
	rttBeta  = 0.25  // RTTVAR 因子 (1/4)
)

// RTTStats RTT 统计 (单位 tick)
type RTTStats struct {
	Samples   uint64
	Skipped   uint64 // 重传过的分组不采样
	Latest    sim.Time
	Min       sim.Time
	Max       sim.Time
	Mean      float64
	Smoothed  float64
	Variance  float64
	Suggested sim.Time // SRTT + max(1, 4*RTTVAR)
}

// RTTEstimator 实现 trace.Sink, 只在仿真 goroutine 中使用
type RTTEstimator struct {
	sentAt        sim.Time
	pending       bool
	retransmitted bool

	stats       RTTStats
	sum         sim.Time
	initialized bool
}

// NewRTTEstimator 创建 RTT 估算器
func NewRTTEstimator() *RTTEstimator {
	return &RTTEstimator{}
}

// Record 实现 trace.Sink
func (r *RTTEstimator) Record(ev trace.Event) {
	if ev.Component != protocol.SenderName {
		return
	}
	switch ev.Kind {
	case trace.KindSend:
		r.sentAt = ev.Time
		r.pending = true
		r.retransmitted = false
	case trace.KindRetransmit:
		r.retransmitted = true
	case trace.KindAckExpected:
		if !r.pending {
			return
		}
		r.pending = false
		if r.retransmitted {
			r.stats.Skipped++
			return
		}
		r.update(ev.Time - r.sentAt)
	}
}

func (r *RTTEstimator) update(sample sim.Time) {
	s := &r.stats
	s.Samples++
	s.Latest = sample
	r.sum += sample
	s.Mean = float64(r.sum) / float64(s.Samples)

	if s.Min == 0 || sample < s.Min {
		s.Min = sample
	}
	if sample > s.Max {
		s.Max = sample
	}

	if !r.initialized {
		s.Smoothed = float64(sample)
		s.Variance = float64(sample) / 2
		r.initialized = true
	} else {
		// RTTVAR = (1 - beta) * RTTVAR + beta * |SRTT - R|
		s.Variance = s.Variance*(1-rttBeta) + math.Abs(s.Smoothed-float64(sample))*rttBeta
		// SRTT = (1 - alpha) * SRTT + alpha * R
		s.Smoothed = s.Smoothed*(1-rttAlpha) + float64(sample)*rttAlpha
	}

	// 时钟粒度为 1 tick
	s.Suggested = sim.Time(math.Ceil(s.Smoothed + math.Max(1, 4*s.Variance)))
}

// Stats 统计快照
func (r *RTTEstimator) Stats() RTTStats {
	return r.stats
}
