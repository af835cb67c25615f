// =============================================================================
// 文件: internal/protocol/sender.go
// 描述: 发送方有限状态机 - 交替位停等协议, 按版本策略处理损坏/错误 ACK/超时
// =============================================================================
package protocol

import (
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

// SenderConfig 发送方配置
type SenderConfig struct {
	Policy  Policy
	Timeout sim.Time
	Logger  *sim.Logger
	Trace   trace.Sink
}

// DefaultSenderConfig 默认配置 (rdt3.1)
func DefaultSenderConfig() *SenderConfig {
	return &SenderConfig{
		Policy:  MustPolicy(RDT31),
		Timeout: DefaultTimeout,
		Trace:   trace.Discard,
	}
}

// Sender 发送方
type Sender struct {
	clock   Clock
	channel Channel
	policy  Policy
	timer   *Timer // rdt2.2 为 nil

	state       SenderState
	seq         uint8  // 下一个数据分组的序列号
	retained    Packet // 最近发送的数据分组, 用于重传
	hasRetained bool

	stats  SenderStats
	logger *sim.Logger
	trace  trace.Sink
}

// NewSender 创建发送方, 初始状态 WaitingForCall0
func NewSender(clock Clock, channel Channel, cfg *SenderConfig) *Sender {
	if clock == nil || channel == nil {
		panic("sender: clock 和 channel 不能为空")
	}
	if cfg == nil {
		cfg = DefaultSenderConfig()
	}

	s := &Sender{
		clock:   clock,
		channel: channel,
		policy:  cfg.Policy,
		state:   WaitingForCall0,
		logger:  cfg.Logger,
		trace:   cfg.Trace,
	}
	if s.trace == nil {
		s.trace = trace.Discard
	}
	if s.policy.UsesTimer {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		s.timer = NewTimer(clock, timeout, s.onTimeout)
	}
	return s
}

// Submit 上层提交一条消息。仍有未确认分组时拒绝并返回 false。
func (s *Sender) Submit(msg string) bool {
	var next SenderState
	switch s.state {
	case WaitingForCall0:
		next = WaitingForAck0
	case WaitingForCall1:
		next = WaitingForAck1
	default:
		s.stats.Rejected++
		s.emit(trace.KindReject, msg)
		return false
	}

	pkt := NewDataPacket(s.seq, msg)
	s.retained = pkt
	s.hasRetained = true
	s.stats.Submitted++
	s.stats.Transmissions++

	s.log(sim.LogDebug, "封装分组 %d 并发送 %s", s.seq, pkt)
	s.emit(trace.KindSubmit, msg)
	s.emit(trace.KindSend, msg)
	s.channel.Send(pkt)

	if s.timer != nil {
		if s.timer.IsRunning() {
			// rdt3.0 的隐式超时会在 WaitingForCall 状态留下运行中的计时器
			s.stats.StrayTimers++
			s.log(sim.LogDebug, "停止遗留计时器 (deadline=%d)", s.timer.Deadline())
			s.stopTimer()
		}
		s.startTimer()
	}

	s.seq ^= 1
	s.state = next
	return true
}

// OnPacket 处理信道送来的分组 (ACK 或损坏分组)
func (s *Sender) OnPacket(pkt Packet) {
	if s.policy.ImplicitTimeoutWhenIdle && s.timer != nil && !s.timer.IsRunning() && s.hasRetained {
		s.stats.ImplicitTimeouts++
		s.log(sim.LogDebug, "收到分组时计时器未运行, 按超时处理")
		s.emit(trace.KindImplicitTimeout, "")
		s.timeoutAction()
	}

	if pkt.IsCorrupt() {
		s.stats.CorruptReceived++
		s.log(sim.LogDebug, "ACK 损坏 %s", pkt)
		s.emit(trace.KindCorruptReceived, "")
		// rdt2.2 在任何状态下都重发, 包括已确认后的 WaitingForCall
		if s.policy.OnCorrupt == ReactResend && s.hasRetained {
			s.retransmit("ACK 损坏")
		}
		return
	}

	ack, ok := pkt.AckSeq()
	if !ok {
		s.log(sim.LogError, "发送方收到非 ACK 分组 %s, 忽略", pkt)
		return
	}

	if want, waiting := s.expectedAck(); waiting && ack == want {
		s.stats.ExpectedAcks++
		s.log(sim.LogDebug, "收到正确的 ACK%d", ack)
		s.emit(trace.KindAckExpected, "")
		if s.timer != nil && s.timer.IsRunning() {
			s.stopTimer()
		}
		if s.state == WaitingForAck0 {
			s.state = WaitingForCall1
		} else {
			s.state = WaitingForCall0
		}
		return
	}

	s.stats.StaleAcks++
	s.log(sim.LogDebug, "收到错误的 ACK%d (状态 %s)", ack, s.state)
	s.emit(trace.KindAckStale, pkt.Kind().String())
	if s.policy.OnStaleAck == ReactResend && s.awaitingAck() {
		s.retransmit("错误 ACK")
	}
}

// State 当前状态
func (s *Sender) State() SenderState {
	return s.state
}

// Policy 当前策略
func (s *Sender) Policy() Policy {
	return s.policy
}

// Stats 统计快照
func (s *Sender) Stats() SenderStats {
	return s.stats
}

// TimerRunning 计时器是否在运行 (rdt2.2 恒为 false)
func (s *Sender) TimerRunning() bool {
	return s.timer != nil && s.timer.IsRunning()
}

// Retained 当前保留的分组
func (s *Sender) Retained() (Packet, bool) {
	return s.retained, s.hasRetained
}

// onTimeout 计时器到期回调
func (s *Sender) onTimeout() {
	s.stats.Timeouts++
	s.log(sim.LogDebug, "超时, 重发 %s", s.retained)
	s.emit(trace.KindTimeout, "")
	s.timeoutAction()
}

// timeoutAction 重发保留的分组并重启计时器
func (s *Sender) timeoutAction() {
	s.retransmit("超时")
	s.startTimer()
}

func (s *Sender) retransmit(reason string) {
	s.stats.Retransmissions++
	if !s.awaitingAck() {
		s.stats.Spurious++
	}
	s.log(sim.LogDebug, "%s, 重发 %s", reason, s.retained)
	s.emit(trace.KindRetransmit, reason)
	s.channel.Send(s.retained)
}

func (s *Sender) startTimer() {
	s.timer.Start()
	s.emit(trace.KindTimerStart, "")
}

func (s *Sender) stopTimer() {
	s.timer.Stop()
	s.emit(trace.KindTimerStop, "")
}

func (s *Sender) awaitingAck() bool {
	return s.state == WaitingForAck0 || s.state == WaitingForAck1
}

// expectedAck 返回当前等待的 ACK 序列号
func (s *Sender) expectedAck() (uint8, bool) {
	switch s.state {
	case WaitingForAck0:
		return 0, true
	case WaitingForAck1:
		return 1, true
	default:
		return 0, false
	}
}

func (s *Sender) emit(kind trace.Kind, detail string) {
	s.trace.Record(trace.Event{
		Time:      s.clock.Now(),
		Component: SenderName,
		Kind:      kind,
		Seq:       int(s.retained.Seq()),
		Detail:    detail,
	})
}

func (s *Sender) log(level int, format string, args ...interface{}) {
	s.logger.Log(level, s.clock.Now(), SenderName, format, args...)
}
