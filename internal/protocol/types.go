// =============================================================================
// 文件: internal/protocol/types.go
// 描述: 停等式可靠传输 - 状态、协作接口与统计类型定义
// =============================================================================
package protocol

import (
	"github.com/mrcgq/rdtsim/internal/sim"
)

// DefaultTimeout 默认重传超时 (tick)
const DefaultTimeout sim.Time = 10

// 组件名 (日志与追踪)
const (
	SenderName   = "RDT_SENDER"
	ReceiverName = "RDT_RECEIVER"
)

// SenderState 发送方状态
type SenderState uint8

const (
	WaitingForCall0 SenderState = iota
	WaitingForAck0
	WaitingForCall1
	WaitingForAck1
)

func (s SenderState) String() string {
	names := []string{
		"WAIT_FOR_CALL_0", "WAIT_FOR_ACK_0", "WAIT_FOR_CALL_1", "WAIT_FOR_ACK_1",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// ReceiverState 接收方状态
type ReceiverState uint8

const (
	WaitingFor0FromBelow ReceiverState = iota
	WaitingFor1FromBelow
)

func (s ReceiverState) String() string {
	switch s {
	case WaitingFor0FromBelow:
		return "WAIT_FOR_0_FROM_BELOW"
	case WaitingFor1FromBelow:
		return "WAIT_FOR_1_FROM_BELOW"
	default:
		return "UNKNOWN"
	}
}

// Clock 虚拟时钟与事件调度 (由 *sim.Scheduler 实现)
type Clock interface {
	Now() sim.Time
	Schedule(delay sim.Time, fn func()) *sim.Event
}

// Channel 不可靠信道的发送端
type Channel interface {
	Send(pkt Packet)
}

// PacketHandler 信道另一端的分组接收者
type PacketHandler interface {
	OnPacket(pkt Packet)
}

// Deliverer 接收方上层应用
type Deliverer interface {
	DeliverData(data string)
}

// Submitter 发送方对上层应用暴露的入口
type Submitter interface {
	Submit(msg string) bool
}

// SenderStats 发送方统计
type SenderStats struct {
	Submitted uint64 // 被接受的消息
	Rejected  uint64 // 因仍有未确认分组而被拒绝

	Transmissions   uint64 // 首次发送
	Retransmissions uint64 // 全部重传
	Spurious        uint64 // 在 WaitingForCall 状态下的重传 (重发已确认的分组)

	Timeouts         uint64
	ImplicitTimeouts uint64 // 仅 rdt3.0
	StrayTimers      uint64 // Submit 时发现仍在运行的计时器

	ExpectedAcks    uint64
	StaleAcks       uint64
	CorruptReceived uint64
}

// ReceiverStats 接收方统计
type ReceiverStats struct {
	Delivered  uint64
	Duplicates uint64
	Corrupt    uint64
	AcksSent   uint64
}
