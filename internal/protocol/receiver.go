// =============================================================================
// 文件: internal/protocol/receiver.go
// 描述: 接收方有限状态机 - 去重、按序交付、每个分组回一个 ACK
// =============================================================================
package protocol

import (
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

// ReceiverConfig 接收方配置
type ReceiverConfig struct {
	Logger *sim.Logger
	Trace  trace.Sink
}

// Receiver 接收方 (三个版本共用)
type Receiver struct {
	clock   Clock
	channel Channel
	app     Deliverer
	state   ReceiverState

	stats  ReceiverStats
	logger *sim.Logger
	trace  trace.Sink
}

// NewReceiver 创建接收方, 初始等待序列号 0
func NewReceiver(clock Clock, channel Channel, app Deliverer, cfg *ReceiverConfig) *Receiver {
	if clock == nil || channel == nil || app == nil {
		panic("receiver: clock、channel 和 app 不能为空")
	}
	if cfg == nil {
		cfg = &ReceiverConfig{}
	}
	r := &Receiver{
		clock:   clock,
		channel: channel,
		app:     app,
		state:   WaitingFor0FromBelow,
		logger:  cfg.Logger,
		trace:   cfg.Trace,
	}
	if r.trace == nil {
		r.trace = trace.Discard
	}
	return r
}

// OnPacket 处理信道送来的分组, 总是回复恰好一个 ACK
func (r *Receiver) OnPacket(pkt Packet) {
	expected := r.expectedSeq()

	if pkt.IsCorrupt() || pkt.Kind() != KindData || pkt.Seq() != expected {
		// 重新确认上一轮
		last := expected ^ 1
		if pkt.IsCorrupt() || pkt.Kind() != KindData {
			r.stats.Corrupt++
			r.log(sim.LogDebug, "分组损坏, 回复 ACK%d", last)
		} else {
			r.stats.Duplicates++
			r.log(sim.LogDebug, "重复分组 %s, 回复 ACK%d", pkt, last)
			r.emit(trace.KindDuplicate, pkt.Seq(), pkt.Data())
		}
		r.sendAck(last)
		return
	}

	r.log(sim.LogDebug, "交付 %s, 回复 ACK%d", pkt, expected)
	r.app.DeliverData(pkt.Data())
	r.stats.Delivered++
	r.emit(trace.KindDeliver, expected, pkt.Data())
	r.sendAck(expected)

	if r.state == WaitingFor0FromBelow {
		r.state = WaitingFor1FromBelow
	} else {
		r.state = WaitingFor0FromBelow
	}
}

// State 当前状态
func (r *Receiver) State() ReceiverState {
	return r.state
}

// Stats 统计快照
func (r *Receiver) Stats() ReceiverStats {
	return r.stats
}

func (r *Receiver) expectedSeq() uint8 {
	if r.state == WaitingFor1FromBelow {
		return 1
	}
	return 0
}

func (r *Receiver) sendAck(seq uint8) {
	r.stats.AcksSent++
	r.emit(trace.KindAckSent, seq, "")
	r.channel.Send(NewAckPacket(seq))
}

func (r *Receiver) emit(kind trace.Kind, seq uint8, detail string) {
	r.trace.Record(trace.Event{
		Time:      r.clock.Now(),
		Component: ReceiverName,
		Kind:      kind,
		Seq:       int(seq),
		Detail:    detail,
	})
}

func (r *Receiver) log(level int, format string, args ...interface{}) {
	r.logger.Log(level, r.clock.Now(), ReceiverName, format, args...)
}
