// =============================================================================
// 文件: internal/trace/trace.go
// 描述: 仿真事件追踪 - 事件定义、扇出、有界历史
// =============================================================================
package trace

import (
	"sync"

	"github.com/mrcgq/rdtsim/internal/sim"
)

// Kind 事件类型
type Kind string

const (
	// 发送方
	KindSubmit          Kind = "submit"
	KindReject          Kind = "reject"
	KindSend            Kind = "send"
	KindRetransmit      Kind = "retransmit"
	KindTimerStart      Kind = "timer_start"
	KindTimerStop       Kind = "timer_stop"
	KindTimeout         Kind = "timeout"
	KindImplicitTimeout Kind = "implicit_timeout"
	KindAckExpected     Kind = "ack_expected"
	KindAckStale        Kind = "ack_stale"
	KindCorruptReceived Kind = "corrupt_received"

	// 接收方
	KindDeliver   Kind = "deliver"
	KindDuplicate Kind = "duplicate"
	KindAckSent   Kind = "ack_sent"

	// 信道
	KindChannelLoss    Kind = "channel_loss"
	KindChannelCorrupt Kind = "channel_corrupt"
	KindChannelDeliver Kind = "channel_deliver"

	// 应用层
	KindAppDeliver   Kind = "app_deliver"
	KindAppViolation Kind = "app_violation"
)

// Event 仿真事件
type Event struct {
	Time      sim.Time `json:"time"`
	Variant   string   `json:"variant,omitempty"`
	Component string   `json:"component"`
	Kind      Kind     `json:"kind"`
	Seq       int      `json:"seq"`
	Detail    string   `json:"detail,omitempty"`
}

// Sink 事件接收者
type Sink interface {
	Record(ev Event)
}

// SinkFunc 函数适配器
type SinkFunc func(ev Event)

// Record 实现 Sink
func (f SinkFunc) Record(ev Event) { f(ev) }

type discard struct{}

func (discard) Record(Event) {}

// Discard 丢弃所有事件
var Discard Sink = discard{}

// Fanout 把事件转发给多个 Sink
type Fanout []Sink

// Record 实现 Sink
func (f Fanout) Record(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Record(ev)
		}
	}
}

// Tag 为事件打上协议版本标签
func Tag(variant string, next Sink) Sink {
	if next == nil {
		return Discard
	}
	return SinkFunc(func(ev Event) {
		ev.Variant = variant
		next.Record(ev)
	})
}

// History 保留最近 limit 条事件
type History struct {
	limit  int
	events []Event
	total  uint64
	counts map[Kind]uint64
	mu     sync.RWMutex
}

// NewHistory 创建事件历史, limit <= 0 时只计数不保留
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{
		limit:  limit,
		events: make([]Event, 0, limit),
		counts: make(map[Kind]uint64),
	}
}

// Record 实现 Sink
func (h *History) Record(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.counts[ev.Kind]++
	if h.limit == 0 {
		return
	}
	if len(h.events) >= h.limit {
		h.events = h.events[1:]
	}
	h.events = append(h.events, ev)
}

// Events 返回最近的事件 (最新在前)
func (h *History) Events(limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.events) {
		limit = len(h.events)
	}
	result := make([]Event, limit)
	for i := 0; i < limit; i++ {
		result[i] = h.events[len(h.events)-1-i]
	}
	return result
}

// Total 记录过的事件总数
func (h *History) Total() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Count 某类事件的数量
func (h *History) Count(kind Kind) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[kind]
}
