// =============================================================================
// 文件: internal/protocol/timer.go
// 描述: 可取消、可重启的重传计时器
// =============================================================================
package protocol

import (
	"fmt"

	"github.com/mrcgq/rdtsim/internal/sim"
)

// Timer 单次计时器。
//
// Start 只能在未运行时调用, Stop 只能在运行时调用, 违反即 panic。
// 到期后先变为未运行, 再调用 handler 一次; 不会自动重复。
type Timer struct {
	clock    Clock
	timeout  sim.Time
	handler  func()
	event    *sim.Event
	deadline sim.Time
	running  bool
}

// NewTimer 创建计时器
func NewTimer(clock Clock, timeout sim.Time, handler func()) *Timer {
	if clock == nil {
		panic("timer: clock 为空")
	}
	if timeout <= 0 {
		panic(fmt.Sprintf("timer: 超时必须为正数, got %d", timeout))
	}
	if handler == nil {
		panic("timer: handler 为空")
	}
	return &Timer{
		clock:   clock,
		timeout: timeout,
		handler: handler,
	}
}

// Start 开始倒计时
func (t *Timer) Start() {
	if t.running {
		panic(fmt.Sprintf("timer: Start 时计时器已在运行 (deadline=%d)", t.deadline))
	}
	t.running = true
	t.deadline = t.clock.Now() + t.timeout
	t.event = t.clock.Schedule(t.timeout, t.expire)
}

// Stop 取消倒计时, handler 不会被调用
func (t *Timer) Stop() {
	if !t.running {
		panic("timer: Stop 时计时器未运行")
	}
	t.event.Cancel()
	t.event = nil
	t.running = false
}

// IsRunning 是否正在倒计时
func (t *Timer) IsRunning() bool {
	return t.running
}

// Deadline 最近一次 Start 的到期时间
func (t *Timer) Deadline() sim.Time {
	return t.deadline
}

// Timeout 超时间隔
func (t *Timer) Timeout() sim.Time {
	return t.timeout
}

func (t *Timer) expire() {
	t.running = false
	t.event = nil
	t.handler()
}
