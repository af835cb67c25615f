// =============================================================================
// 文件: internal/sim/scheduler_test.go
// 描述: 离散事件调度器测试
// =============================================================================
package sim

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSchedulerOrdering(t *testing.T) {
	s := NewScheduler()
	var order []string

	s.Schedule(5, func() { order = append(order, "c") })
	s.Schedule(1, func() { order = append(order, "a") })
	s.Schedule(5, func() { order = append(order, "d") })
	s.Schedule(3, func() { order = append(order, "b") })

	if err := s.Run(context.Background(), Forever); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	if got := strings.Join(order, ""); got != "abcd" {
		t.Errorf("执行顺序不正确: got %s, want abcd", got)
	}
	if s.Now() != 5 {
		t.Errorf("Now 不正确: got %d, want 5", s.Now())
	}
	if s.Processed() != 4 {
		t.Errorf("Processed 不正确: got %d, want 4", s.Processed())
	}
}

func TestSchedulerSameTimeFIFO(t *testing.T) {
	s := NewScheduler()
	var order []int

	// 事件在执行中再调度 delay=0 的事件, 应排在同一时刻已有事件之后
	s.Schedule(2, func() {
		order = append(order, 1)
		s.Schedule(0, func() { order = append(order, 3) })
	})
	s.Schedule(2, func() { order = append(order, 2) })

	s.Run(context.Background(), Forever)

	want := []int{1, 2, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("同刻顺序不正确: got %v, want %v", order, want)
		}
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	fired := false

	ev := s.Schedule(10, func() { fired = true })
	other := s.Schedule(4, func() {})

	if !ev.Pending() {
		t.Fatal("新事件应处于 Pending")
	}
	if !ev.Cancel() {
		t.Fatal("首次 Cancel 应返回 true")
	}
	if ev.Cancel() {
		t.Error("重复 Cancel 应返回 false")
	}
	if s.Pending() != 1 {
		t.Errorf("Pending 不正确: got %d, want 1", s.Pending())
	}

	s.Run(context.Background(), Forever)

	if fired {
		t.Error("已取消的事件不应执行")
	}
	if other.Cancel() {
		t.Error("已执行的事件 Cancel 应返回 false")
	}
}

func TestSchedulerRunUntil(t *testing.T) {
	s := NewScheduler()
	count := 0
	var tick func()
	tick = func() {
		count++
		s.Schedule(10, tick)
	}
	s.Schedule(0, tick)

	if err := s.Run(context.Background(), 95); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	// t=0,10,...,90
	if count != 10 {
		t.Errorf("执行次数不正确: got %d, want 10", count)
	}
	if s.Now() != 95 {
		t.Errorf("Run 结束后 Now 应推进到 until: got %d", s.Now())
	}

	if err := s.Run(context.Background(), 50); err == nil {
		t.Error("until 早于当前时间应返回错误")
	}
}

func TestSchedulerContextCancel(t *testing.T) {
	s := NewScheduler()
	var tick func()
	tick = func() { s.Schedule(1, tick) }
	s.Schedule(0, tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, Forever)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("应返回 context.Canceled: got %v", err)
	}
}

func TestSchedulePanicsOnNegativeDelay(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("负 delay 应 panic")
		}
	}()
	NewScheduler().Schedule(-1, func() {})
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogInfo)

	l.Log(LogDebug, 3, "X", "hidden")
	l.Log(LogInfo, 7, "RDT_SENDER", "hello %d", 42)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug 日志不应输出")
	}
	if !strings.Contains(out, "[INFO] t=7 [RDT_SENDER] hello 42") {
		t.Errorf("日志格式不正确: %q", out)
	}

	var nilLogger *Logger
	nilLogger.Log(LogError, 0, "X", "nothing")
	if nilLogger.Enabled(LogError) {
		t.Error("nil Logger 不应启用")
	}
}
