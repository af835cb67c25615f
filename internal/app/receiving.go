// =============================================================================
// 文件: internal/app/receiving.go
// 描述: 接收方应用 - 按序交付审计, 布隆过滤器快速判重
// =============================================================================
package app

import (
	"fmt"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

// ReceivingName 组件名
const ReceivingName = "RECEIVING_APP"

const (
	// 布隆过滤器参数
	bloomExpectedItems = 100000
	bloomFalsePositive = 0.0001
)

// ViolationKind 违规类型
type ViolationKind string

const (
	ViolationDuplicate  ViolationKind = "duplicate"
	ViolationOutOfOrder ViolationKind = "out_of_order"
	ViolationMalformed  ViolationKind = "malformed"
)

// Violation 一次违反按序、恰好一次交付的记录
type Violation struct {
	At       sim.Time
	Kind     ViolationKind
	Data     string
	Expected int
}

func (v Violation) String() string {
	return fmt.Sprintf("t=%d %s: got %q, expected %d", v.At, v.Kind, v.Data, v.Expected)
}

// ReceivingConfig 接收方应用配置
type ReceivingConfig struct {
	Logger *sim.Logger
	Trace  trace.Sink
	// OnDeliver 每次正确交付后回调 (消息编号, 交付时刻)
	OnDeliver func(n int, at sim.Time)
}

// ReceivingStats 接收方应用统计
type ReceivingStats struct {
	Received       uint64
	BloomHits      uint64 // 布隆过滤器命中 (含误报)
	ExactHits      uint64 // 命中后确认为重复
	FalsePositives uint64 // 命中后确认为误报
	Violations     uint64
}

// Receiving 接收方应用, 实现 protocol.Deliverer
type Receiving struct {
	cfg   ReceivingConfig
	clock protocol.Clock
	seen  *bloom.BloomFilter

	received   int
	violations []Violation
	stats      ReceivingStats

	trace trace.Sink
}

// NewReceiving 创建接收方应用
func NewReceiving(clock protocol.Clock, cfg ReceivingConfig) *Receiving {
	if clock == nil {
		panic("app: clock 不能为空")
	}
	a := &Receiving{
		cfg:   cfg,
		clock: clock,
		seen:  bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositive),
		trace: cfg.Trace,
	}
	if a.trace == nil {
		a.trace = trace.Discard
	}
	return a
}

// DeliverData 第 k 次交付必须是消息 "k"
func (a *Receiving) DeliverData(data string) {
	now := a.clock.Now()
	expected := a.received

	n, err := strconv.Atoi(data)
	if err != nil || n < 0 {
		a.violate(now, ViolationMalformed, data, expected)
		return
	}

	// 布隆过滤器未命中: 一定没交付过, 只需检查顺序
	// 命中: 可能误报, 用交付计数精确确认 (已交付的恰好是 0..expected-1)
	if a.seen.TestString(data) {
		a.stats.BloomHits++
		if n < expected {
			a.stats.ExactHits++
			a.violate(now, ViolationDuplicate, data, expected)
			return
		}
		a.stats.FalsePositives++
	}
	if n != expected {
		a.violate(now, ViolationOutOfOrder, data, expected)
		return
	}

	a.seen.AddString(data)
	a.received++
	a.stats.Received++
	a.cfg.Logger.Log(sim.LogDebug, now, ReceivingName, "收到消息 %s", data)
	a.trace.Record(trace.Event{Time: now, Component: ReceivingName, Kind: trace.KindAppDeliver, Seq: n % 2, Detail: data})

	if a.cfg.OnDeliver != nil {
		a.cfg.OnDeliver(n, now)
	}
}

// Received 正确交付的消息数
func (a *Receiving) Received() int {
	return a.received
}

// Violations 全部违规记录
func (a *Receiving) Violations() []Violation {
	out := make([]Violation, len(a.violations))
	copy(out, a.violations)
	return out
}

// Stats 统计快照
func (a *Receiving) Stats() ReceivingStats {
	return a.stats
}

func (a *Receiving) violate(now sim.Time, kind ViolationKind, data string, expected int) {
	v := Violation{At: now, Kind: kind, Data: data, Expected: expected}
	a.violations = append(a.violations, v)
	a.stats.Violations++
	a.cfg.Logger.Log(sim.LogError, now, ReceivingName, "交付违规: %s", v)
	a.trace.Record(trace.Event{Time: now, Component: ReceivingName, Kind: trace.KindAppViolation, Seq: -1, Detail: v.String()})
}
