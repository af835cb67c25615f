package app

import (
	"context"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/mrcgq/rdtsim/internal/sim"
)

// gate 每 busy 个 tick 才接受一次提交
type gate struct {
	clock  *sim.Scheduler
	busy   sim.Time
	freeAt sim.Time
	msgs   []string
}

func (g *gate) Submit(msg string) bool {
	if g.clock.Now() < g.freeAt {
		return false
	}
	g.msgs = append(g.msgs, msg)
	g.freeAt = g.clock.Now() + g.busy
	return true
}

func TestSendingProducesSequence(t *testing.T) {
	sched := sim.NewScheduler()
	g := &gate{clock: sched, busy: 5}
	a := NewSending(sched, g, SendingConfig{Interval: 1, RetryInterval: 1, MaxMessages: 4})

	a.Start()
	a.Start()
	sched.Run(context.Background(), 1000)

	want := []string{"0", "1", "2", "3"}
	if len(g.msgs) != len(want) {
		t.Fatalf("提交数量不正确: got %v, want %v", g.msgs, want)
	}
	for i := range want {
		if g.msgs[i] != want[i] {
			t.Errorf("第 %d 条消息不正确: got %q, want %q", i, g.msgs[i], want[i])
		}
		at, ok := a.SubmittedAt(i)
		if !ok || at != sim.Time(5*i) {
			t.Errorf("第 %d 条提交时间不正确: got %d, want %d", i, at, 5*i)
		}
	}
	if !a.Done() {
		t.Error("达到 MaxMessages 后应结束")
	}
	st := a.Stats()
	if st.Accepted != 4 || st.Rejected != 12 {
		t.Errorf("统计不正确: %+v", st)
	}
	if sched.Pending() != 0 {
		t.Errorf("结束后不应再调度: pending=%d", sched.Pending())
	}
}

func TestSendingRetryIntervalFloor(t *testing.T) {
	sched := sim.NewScheduler()
	g := &gate{clock: sched, busy: 3}
	a := NewSending(sched, g, SendingConfig{RetryInterval: 0, MaxMessages: 2})

	a.Start()
	if err := sched.Run(context.Background(), 100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(g.msgs) != 2 {
		t.Errorf("提交数量不正确: got %d", len(g.msgs))
	}
}

func TestReceivingAudit(t *testing.T) {
	t.Run("按序交付", func(t *testing.T) {
		sched := sim.NewScheduler()
		var delivered []int
		a := NewReceiving(sched, ReceivingConfig{OnDeliver: func(n int, _ sim.Time) { delivered = append(delivered, n) }})

		for _, d := range []string{"0", "1", "2"} {
			a.DeliverData(d)
		}
		if a.Received() != 3 || len(a.Violations()) != 0 {
			t.Errorf("交付不正确: received=%d violations=%v", a.Received(), a.Violations())
		}
		if len(delivered) != 3 || delivered[2] != 2 {
			t.Errorf("OnDeliver 回调不正确: %v", delivered)
		}
	})

	t.Run("重复交付", func(t *testing.T) {
		a := NewReceiving(sim.NewScheduler(), ReceivingConfig{})
		a.DeliverData("0")
		a.DeliverData("1")
		a.DeliverData("1")

		v := a.Violations()
		if len(v) != 1 || v[0].Kind != ViolationDuplicate || v[0].Expected != 2 {
			t.Fatalf("应记录一次重复: %v", v)
		}
		if st := a.Stats(); st.BloomHits != 1 || st.ExactHits != 1 || st.FalsePositives != 0 {
			t.Errorf("布隆统计不正确: %+v", st)
		}
		if a.Received() != 2 {
			t.Errorf("重复不应计入: got %d", a.Received())
		}
	})

	t.Run("布隆误报经精确确认后仍交付", func(t *testing.T) {
		a := NewReceiving(sim.NewScheduler(), ReceivingConfig{})
		// 1 bit 的过滤器: 加入任意元素后对所有查询都命中
		a.seen = bloom.New(1, 1)

		for _, d := range []string{"0", "1", "2"} {
			a.DeliverData(d)
		}
		if a.Received() != 3 || len(a.Violations()) != 0 {
			t.Fatalf("误报不应阻止交付: received=%d violations=%v", a.Received(), a.Violations())
		}
		st := a.Stats()
		if st.BloomHits != 2 || st.FalsePositives != 2 || st.ExactHits != 0 {
			t.Errorf("布隆统计不正确: %+v", st)
		}
	})

	t.Run("布隆未命中时不走重复判定", func(t *testing.T) {
		a := NewReceiving(sim.NewScheduler(), ReceivingConfig{})
		a.DeliverData("0")
		a.DeliverData("1")
		// 换成空过滤器: "0" 不再命中, 只按顺序判定
		a.seen = bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositive)
		a.DeliverData("0")

		v := a.Violations()
		if len(v) != 1 || v[0].Kind != ViolationOutOfOrder {
			t.Fatalf("未命中时应按乱序记录: %v", v)
		}
		if st := a.Stats(); st.BloomHits != 0 || st.ExactHits != 0 {
			t.Errorf("不应有布隆命中: %+v", st)
		}
	})

	t.Run("乱序与非法载荷", func(t *testing.T) {
		a := NewReceiving(sim.NewScheduler(), ReceivingConfig{})
		a.DeliverData("1")
		a.DeliverData("$H!T")

		v := a.Violations()
		if len(v) != 2 || v[0].Kind != ViolationOutOfOrder || v[1].Kind != ViolationMalformed {
			t.Errorf("违规记录不正确: %v", v)
		}
	})
}
