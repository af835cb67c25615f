// =============================================================================
// 文件: internal/sim/scheduler.go
// 描述: 离散事件调度器 - 虚拟时钟、同一时刻按调度顺序执行、可取消事件
// =============================================================================
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math"
)

// Time 虚拟时间 (tick)
type Time int64

// Forever 不限制运行时长
const Forever Time = math.MaxInt64

// 每处理多少个事件检查一次 context
const ctxCheckInterval = 1024

// Event 已调度事件的句柄
type Event struct {
	at    Time
	seq   uint64 // 同一时刻按调度顺序执行
	fn    func()
	index int // 堆内位置, -1 表示已出队
	sched *Scheduler
}

// At 事件计划执行时间
func (e *Event) At() Time {
	return e.at
}

// Pending 事件是否仍在队列中
func (e *Event) Pending() bool {
	return e.index >= 0
}

// Cancel 取消事件, 已执行或已取消时返回 false
func (e *Event) Cancel() bool {
	if e.index < 0 {
		return false
	}
	heap.Remove(&e.sched.queue, e.index)
	e.fn = nil
	return true
}

// eventQueue 按 (at, seq) 排序的最小堆
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// Scheduler 单线程离散事件调度器
//
// 所有实体 (发送方、接收方、计时器、信道) 都以事件的形式挂在同一个虚拟时钟上,
// 任一时刻只有一个事件在执行。调度器本身不是并发安全的。
type Scheduler struct {
	now       Time
	nextSeq   uint64
	queue     eventQueue
	processed uint64
}

// NewScheduler 创建调度器, 虚拟时间从 0 开始
func NewScheduler() *Scheduler {
	return &Scheduler{
		queue: make(eventQueue, 0, 64),
	}
}

// Now 当前虚拟时间
func (s *Scheduler) Now() Time {
	return s.now
}

// Pending 队列中等待执行的事件数
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Processed 已执行的事件数
func (s *Scheduler) Processed() uint64 {
	return s.processed
}

// Schedule 在 delay 个 tick 之后执行 fn
func (s *Scheduler) Schedule(delay Time, fn func()) *Event {
	if delay < 0 {
		panic(fmt.Sprintf("sim: 不能调度到过去 (delay=%d)", delay))
	}
	if fn == nil {
		panic("sim: 事件处理函数为空")
	}
	if s.now > Forever-delay {
		panic(fmt.Sprintf("sim: 调度时间溢出 (now=%d, delay=%d)", s.now, delay))
	}

	ev := &Event{
		at:    s.now + delay,
		seq:   s.nextSeq,
		fn:    fn,
		sched: s,
	}
	s.nextSeq++
	heap.Push(&s.queue, ev)
	return ev
}

// Step 执行下一个事件, 队列为空时返回 false
func (s *Scheduler) Step() bool {
	if len(s.queue) == 0 {
		return false
	}
	ev := heap.Pop(&s.queue).(*Event)
	s.now = ev.at
	fn := ev.fn
	ev.fn = nil
	s.processed++
	fn()
	return true
}

// Run 运行到队列为空、下一事件晚于 until 或 ctx 被取消为止。
// 正常结束时虚拟时间推进到 until (Forever 除外)。
func (s *Scheduler) Run(ctx context.Context, until Time) error {
	if until < s.now {
		return fmt.Errorf("sim: until (%d) 早于当前时间 (%d)", until, s.now)
	}

	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if len(s.queue) == 0 || s.queue[0].at > until {
			break
		}
		s.Step()
	}

	if until != Forever {
		s.now = until
	}
	return nil
}
