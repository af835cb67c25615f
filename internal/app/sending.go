// =============================================================================
// 文件: internal/app/sending.go
// 描述: 发送方应用 - 依次产生 "0","1","2",... 并提交给可靠传输层
// =============================================================================
package app

import (
	"strconv"

	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
)

// SendingName 组件名
const SendingName = "SENDING_APP"

// SendingConfig 发送方应用配置
type SendingConfig struct {
	Interval      sim.Time // 提交成功后到下一条消息的间隔
	RetryInterval sim.Time // 被拒绝后的重试间隔, 至少 1
	MaxMessages   int      // 0 表示不限
	Logger        *sim.Logger
}

// SendingStats 发送方应用统计
type SendingStats struct {
	Accepted uint64
	Rejected uint64
}

// Sending 发送方应用
type Sending struct {
	cfg    SendingConfig
	clock  protocol.Clock
	sender protocol.Submitter

	next        int
	submittedAt []sim.Time
	stats       SendingStats
	started     bool
}

// NewSending 创建发送方应用
func NewSending(clock protocol.Clock, sender protocol.Submitter, cfg SendingConfig) *Sending {
	if clock == nil || sender == nil {
		panic("app: clock 和 sender 不能为空")
	}
	if cfg.RetryInterval < 1 {
		cfg.RetryInterval = 1
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Sending{cfg: cfg, clock: clock, sender: sender}
}

// Start 在当前时刻开始发送, 重复调用无效
func (a *Sending) Start() {
	if a.started {
		return
	}
	a.started = true
	a.clock.Schedule(0, a.attempt)
}

func (a *Sending) attempt() {
	if a.Done() {
		return
	}

	msg := strconv.Itoa(a.next)
	if !a.sender.Submit(msg) {
		a.stats.Rejected++
		a.clock.Schedule(a.cfg.RetryInterval, a.attempt)
		return
	}

	a.stats.Accepted++
	a.submittedAt = append(a.submittedAt, a.clock.Now())
	a.cfg.Logger.Log(sim.LogDebug, a.clock.Now(), SendingName, "提交消息 %s", msg)
	a.next++

	if !a.Done() {
		a.clock.Schedule(a.cfg.Interval, a.attempt)
	}
}

// Done 是否已发完 MaxMessages 条
func (a *Sending) Done() bool {
	return a.cfg.MaxMessages > 0 && a.next >= a.cfg.MaxMessages
}

// SubmittedAt 第 n 条消息被接受的时刻
func (a *Sending) SubmittedAt(n int) (sim.Time, bool) {
	if n < 0 || n >= len(a.submittedAt) {
		return 0, false
	}
	return a.submittedAt[n], true
}

// Stats 统计快照
func (a *Sending) Stats() SendingStats {
	return a.stats
}
