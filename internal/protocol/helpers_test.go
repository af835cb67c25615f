package protocol

import (
	"github.com/mrcgq/rdtsim/internal/sim"
)

// recordingChannel 只记录发送的分组
type recordingChannel struct {
	sent []Packet
}

func (c *recordingChannel) Send(p Packet) {
	c.sent = append(c.sent, p)
}

func (c *recordingChannel) last() Packet {
	return c.sent[len(c.sent)-1]
}

// recordingApp 记录交付的数据
type recordingApp struct {
	data []string
}

func (a *recordingApp) DeliverData(d string) {
	a.data = append(a.data, d)
}

// link 按发送序号 (从 1 开始) 丢弃或损坏分组, 延迟 delay 后交给 target
type link struct {
	clock   *sim.Scheduler
	delay   sim.Time
	target  PacketHandler
	drop    map[int]bool
	corrupt map[int]bool
	sent    []Packet
}

func newLink(clock *sim.Scheduler, delay sim.Time) *link {
	return &link{
		clock:   clock,
		delay:   delay,
		drop:    map[int]bool{},
		corrupt: map[int]bool{},
	}
}

func (l *link) Send(p Packet) {
	l.sent = append(l.sent, p)
	n := len(l.sent)
	if l.drop[n] {
		return
	}
	if l.corrupt[n] {
		p = CorruptPacket()
	}
	l.clock.Schedule(l.delay, func() { l.target.OnPacket(p) })
}

// pair 一组通过 link 相连的发送方与接收方
type pair struct {
	sched    *sim.Scheduler
	data     *link
	ack      *link
	sender   *Sender
	receiver *Receiver
	app      *recordingApp
}

func newPair(v Variant) *pair {
	sched := sim.NewScheduler()
	p := &pair{
		sched: sched,
		data:  newLink(sched, 1),
		ack:   newLink(sched, 1),
		app:   &recordingApp{},
	}
	p.sender = NewSender(sched, p.data, &SenderConfig{Policy: MustPolicy(v), Timeout: DefaultTimeout})
	p.receiver = NewReceiver(sched, p.ack, p.app, nil)
	p.data.target = p.receiver
	p.ack.target = p.sender
	return p
}

// feed 每个 tick 检查一次, 发送方空闲时提交下一条消息
func (p *pair) feed(msgs []string) {
	next := 0
	var poll func()
	poll = func() {
		if next < len(msgs) && p.sender.Submit(msgs[next]) {
			next++
		}
		if next < len(msgs) {
			p.sched.Schedule(1, poll)
		}
	}
	p.sched.Schedule(0, poll)
}
