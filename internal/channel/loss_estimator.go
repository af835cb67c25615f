// =============================================================================
// 文件: internal/channel/loss_estimator.go
// 描述: 信道丢包/损坏率估算器 - 三层 EWMA + 滑动窗口 + 突发检测 (虚拟时间)
// =============================================================================
package channel

import (
	"math"
	"sync"

	"github.com/mrcgq/rdtsim/internal/sim"
)

const (
	// EWMA 参数
	ewmaAlpha = 0.125  // 短期 (1/8)
	ewmaBeta  = 0.25   // 中期 (1/4)
	ewmaGamma = 0.0625 // 长期 (1/16)

	shortWindowSize  = 50
	mediumWindowSize = 200

	// 突发检测: burstSpan 个 tick 内至少 burstWindow/2 次丢失
	burstWindow = 20
	burstSpan   = sim.Time(100)
)

// LossEstimator 观测到的丢失率估算器
type LossEstimator struct {
	ewmaShort  float64
	ewmaMedium float64
	ewmaLong   float64

	shortWindow  *SlidingWindow
	mediumWindow *SlidingWindow

	burst *BurstDetector

	total      uint64
	lost       uint64
	longestRun int
	currentRun int

	mu sync.RWMutex
}

// LossStats 估算快照
type LossStats struct {
	EWMAShort    float64
	EWMAMedium   float64
	EWMALong     float64
	ShortWindow  float64
	MediumWindow float64
	Observed     float64 // lost / total
	Samples      uint64
	Lost         uint64
	LongestRun   int
	InBurst      bool
}

// NewLossEstimator 创建估算器
func NewLossEstimator() *LossEstimator {
	return &LossEstimator{
		shortWindow:  NewSlidingWindow(shortWindowSize),
		mediumWindow: NewSlidingWindow(mediumWindowSize),
		burst:        NewBurstDetector(burstWindow, burstSpan),
	}
}

// Observe 记录一个分组的结果
func (e *LossEstimator) Observe(now sim.Time, isLoss bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.total++
	sample := 0.0
	if isLoss {
		sample = 1.0
		e.lost++
		e.currentRun++
		if e.currentRun > e.longestRun {
			e.longestRun = e.currentRun
		}
		e.burst.OnLoss(now)
	} else {
		e.currentRun = 0
	}

	e.shortWindow.Add(isLoss)
	e.mediumWindow.Add(isLoss)

	e.ewmaShort = ewmaAlpha*sample + (1-ewmaAlpha)*e.ewmaShort
	e.ewmaMedium = ewmaBeta*sample + (1-ewmaBeta)*e.ewmaMedium
	e.ewmaLong = ewmaGamma*sample + (1-ewmaGamma)*e.ewmaLong
}

// Rate 平滑估算: 瞬时窗口 30% + 短期 30% + 中长期趋势 40%
func (e *LossEstimator) Rate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	trend := 0.6*e.ewmaMedium + 0.4*e.ewmaLong
	smoothed := 0.3*e.shortWindow.LossRate() + 0.3*e.ewmaShort + 0.4*trend
	return math.Max(0, math.Min(1, smoothed))
}

// Stats 获取快照
func (e *LossEstimator) Stats() LossStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := LossStats{
		EWMAShort:    e.ewmaShort,
		EWMAMedium:   e.ewmaMedium,
		EWMALong:     e.ewmaLong,
		ShortWindow:  e.shortWindow.LossRate(),
		MediumWindow: e.mediumWindow.LossRate(),
		Samples:      e.total,
		Lost:         e.lost,
		LongestRun:   e.longestRun,
		InBurst:      e.burst.inBurst,
	}
	if e.total > 0 {
		st.Observed = float64(e.lost) / float64(e.total)
	}
	return st
}

// SlidingWindow 固定大小的环形窗口
type SlidingWindow struct {
	size      int
	events    []bool // true = loss
	lossCount int
	head      int
	count     int
}

// NewSlidingWindow 创建滑动窗口
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{
		size:   size,
		events: make([]bool, size),
	}
}

// Add 添加事件, 窗口满时覆盖最旧的
func (w *SlidingWindow) Add(isLoss bool) {
	if w.count >= w.size && w.events[w.head] {
		w.lossCount--
	}

	w.events[w.head] = isLoss
	if isLoss {
		w.lossCount++
	}

	w.head = (w.head + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// LossRate 窗口内丢失率
func (w *SlidingWindow) LossRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.lossCount) / float64(w.count)
}

// BurstDetector 突发丢失检测
type BurstDetector struct {
	windowSize   int
	span         sim.Time
	recentLosses []sim.Time
	inBurst      bool
}

// NewBurstDetector 创建突发检测器
func NewBurstDetector(windowSize int, span sim.Time) *BurstDetector {
	return &BurstDetector{
		windowSize:   windowSize,
		span:         span,
		recentLosses: make([]sim.Time, 0, windowSize),
	}
}

// OnLoss 丢失事件
func (b *BurstDetector) OnLoss(now sim.Time) {
	cutoff := now - b.span
	kept := b.recentLosses[:0]
	for _, t := range b.recentLosses {
		if t > cutoff {
			kept = append(kept, t)
		}
	}
	b.recentLosses = append(kept, now)

	b.inBurst = len(b.recentLosses) >= b.windowSize/2
}
