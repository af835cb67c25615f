// =============================================================================
// 文件: internal/channel/unreliable.go
// 描述: 不可靠信道 - 按概率丢失/损坏分组, 延迟后交给对端
// =============================================================================
package channel

import (
	"fmt"
	"math/rand/v2"

	"github.com/mrcgq/rdtsim/internal/protocol"
	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

// 信道名
const (
	DataChannelName = "DATA_CHANNEL"
	AckChannelName  = "ACK_CHANNEL"
)

// DelayMode 延迟模式
type DelayMode string

const (
	DelayFixed   DelayMode = "fixed"   // 建立时抽取一次, 保持 FIFO
	DelayUniform DelayMode = "uniform" // 每个分组独立抽取, 可能乱序
)

// CorruptionMode 损坏方式
type CorruptionMode string

const (
	CorruptMarker  CorruptionMode = "marker"  // 载荷替换为损坏标记
	CorruptBitFlip CorruptionMode = "bitflip" // 随机翻转一位
)

var (
	ErrInvalidProbability = fmt.Errorf("probability must be within [0, 1]")
	ErrInvalidDelay       = fmt.Errorf("invalid delay range")
	ErrInvalidMode        = fmt.Errorf("invalid channel mode")
)

// Config 信道参数
type Config struct {
	Name           string
	CorruptProb    float64
	LossProb       float64
	DelayMin       sim.Time
	DelayMax       sim.Time
	DelayMode      DelayMode
	CorruptionMode CorruptionMode
	Seed           uint64
	Logger         *sim.Logger
	Trace          trace.Sink
}

// Validate 检查参数
func (c Config) Validate() error {
	if c.CorruptProb < 0 || c.CorruptProb > 1 {
		return fmt.Errorf("%s corrupt_prob=%v: %w", c.Name, c.CorruptProb, ErrInvalidProbability)
	}
	if c.LossProb < 0 || c.LossProb > 1 {
		return fmt.Errorf("%s loss_prob=%v: %w", c.Name, c.LossProb, ErrInvalidProbability)
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("%s delay [%d, %d]: %w", c.Name, c.DelayMin, c.DelayMax, ErrInvalidDelay)
	}
	switch c.DelayMode {
	case DelayFixed, DelayUniform, "":
	default:
		return fmt.Errorf("%s delay_mode=%q: %w", c.Name, c.DelayMode, ErrInvalidMode)
	}
	switch c.CorruptionMode {
	case CorruptMarker, CorruptBitFlip, "":
	default:
		return fmt.Errorf("%s corruption=%q: %w", c.Name, c.CorruptionMode, ErrInvalidMode)
	}
	return nil
}

// Stats 信道统计
type Stats struct {
	Sent      uint64
	Lost      uint64
	Corrupted uint64
	Delivered uint64
	InFlight  int
}

// Unreliable 单向不可靠信道, 实现 protocol.Channel
type Unreliable struct {
	cfg      Config
	clock    protocol.Clock
	rng      *rand.Rand
	receiver protocol.PacketHandler

	fixedDelay sim.Time

	stats   Stats
	loss    *LossEstimator
	corrupt *LossEstimator

	logger *sim.Logger
	trace  trace.Sink
}

// NewUnreliable 创建信道
func NewUnreliable(clock protocol.Clock, cfg Config) (*Unreliable, error) {
	if clock == nil {
		return nil, fmt.Errorf("channel: clock 不能为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DelayMode == "" {
		cfg.DelayMode = DelayFixed
	}
	if cfg.CorruptionMode == "" {
		cfg.CorruptionMode = CorruptMarker
	}

	u := &Unreliable{
		cfg:     cfg,
		clock:   clock,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		loss:    NewLossEstimator(),
		corrupt: NewLossEstimator(),
		logger:  cfg.Logger,
		trace:   cfg.Trace,
	}
	if u.trace == nil {
		u.trace = trace.Discard
	}
	if cfg.DelayMode == DelayFixed {
		u.fixedDelay = u.drawDelay()
	}
	return u, nil
}

// SetReceiver 设置对端
func (u *Unreliable) SetReceiver(h protocol.PacketHandler) {
	u.receiver = h
}

// Name 信道名
func (u *Unreliable) Name() string {
	return u.cfg.Name
}

// Send 发送分组: 先按 Pl 丢失, 否则按 Pc 损坏, 再延迟交付
func (u *Unreliable) Send(pkt protocol.Packet) {
	if u.receiver == nil {
		panic(fmt.Sprintf("channel %s: 未设置接收方", u.cfg.Name))
	}
	now := u.clock.Now()
	u.stats.Sent++

	if u.rng.Float64() < u.cfg.LossProb {
		u.stats.Lost++
		u.loss.Observe(now, true)
		u.log(sim.LogDebug, "丢失 %s", pkt)
		u.emit(trace.KindChannelLoss, pkt, "")
		return
	}
	u.loss.Observe(now, false)

	corrupted := u.rng.Float64() < u.cfg.CorruptProb
	u.corrupt.Observe(now, corrupted)
	if corrupted {
		u.stats.Corrupted++
		orig := pkt
		pkt = u.corruptPacket(pkt)
		u.log(sim.LogDebug, "损坏 %s -> %s", orig, pkt)
		u.emit(trace.KindChannelCorrupt, orig, string(u.cfg.CorruptionMode))
	}

	delay := u.fixedDelay
	if u.cfg.DelayMode == DelayUniform {
		delay = u.drawDelay()
	}

	u.stats.InFlight++
	u.clock.Schedule(delay, func() {
		u.stats.InFlight--
		u.stats.Delivered++
		u.emit(trace.KindChannelDeliver, pkt, "")
		u.receiver.OnPacket(pkt)
	})
}

// Stats 统计快照
func (u *Unreliable) Stats() Stats {
	return u.stats
}

// ObservedLoss 观测到的丢失率估算
func (u *Unreliable) ObservedLoss() LossStats {
	return u.loss.Stats()
}

// ObservedCorruption 观测到的损坏率估算 (只统计未丢失的分组)
func (u *Unreliable) ObservedCorruption() LossStats {
	return u.corrupt.Stats()
}

func (u *Unreliable) corruptPacket(pkt protocol.Packet) protocol.Packet {
	if u.cfg.CorruptionMode == CorruptBitFlip {
		return pkt.WithFlippedBit(u.rng.IntN(pkt.Size() * 8))
	}
	return protocol.CorruptPacket()
}

func (u *Unreliable) drawDelay() sim.Time {
	span := int64(u.cfg.DelayMax - u.cfg.DelayMin)
	return u.cfg.DelayMin + sim.Time(u.rng.Int64N(span+1))
}

func (u *Unreliable) emit(kind trace.Kind, pkt protocol.Packet, detail string) {
	seq := int(pkt.Seq())
	if ack, ok := pkt.AckSeq(); ok {
		seq = int(ack)
	}
	if detail == "" {
		detail = pkt.Kind().String()
	}
	u.trace.Record(trace.Event{
		Time:      u.clock.Now(),
		Component: u.cfg.Name,
		Kind:      kind,
		Seq:       seq,
		Detail:    detail,
	})
}

func (u *Unreliable) log(level int, format string, args ...interface{}) {
	u.logger.Log(level, u.clock.Now(), u.cfg.Name, format, args...)
}
