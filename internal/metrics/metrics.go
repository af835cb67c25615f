// =============================================================================
// 文件: internal/metrics/metrics.go
// 描述: 仿真状态快照 - 由仿真驱动发布, 供 Prometheus 收集器与健康检查读取
// =============================================================================
package metrics

import (
	"fmt"

	"github.com/mrcgq/rdtsim/internal/channel"
	"github.com/mrcgq/rdtsim/internal/protocol"
)

// StatsProvider 快照提供者 (runner.Simulation 实现)
type StatsProvider interface {
	Snapshot() Snapshot
}

// Snapshot 某一时刻的仿真状态
type Snapshot struct {
	Variant  string
	Now      int64
	Until    int64
	Finished bool

	SenderState   protocol.SenderState
	ReceiverState protocol.ReceiverState
	Sender        protocol.SenderStats
	Receiver      protocol.ReceiverStats

	Channels []ChannelSnapshot

	Delivered  int
	Violations int
}

// ChannelSnapshot 单个信道的状态
type ChannelSnapshot struct {
	Name               string
	Stats              channel.Stats
	ObservedLoss       float64
	ObservedCorruption float64
}

// Progress 仿真进度 [0, 1]
func (s Snapshot) Progress() float64 {
	if s.Finished {
		return 1
	}
	if s.Until <= 0 {
		return 0
	}
	p := float64(s.Now) / float64(s.Until)
	if p > 1 {
		p = 1
	}
	return p
}

// SimHealthCheck 基于快照的健康检查: 有交付违规时为 degraded
func SimHealthCheck(providers ...StatsProvider) func() HealthStatus {
	return func() HealthStatus {
		status := HealthStatus{
			Status:     "healthy",
			Components: make(map[string]ComponentHealth, len(providers)),
		}
		for _, p := range providers {
			s := p.Snapshot()
			comp := ComponentHealth{Status: "running"}
			if s.Finished {
				comp.Status = "finished"
			}
			if s.Violations > 0 {
				comp.Status = "degraded"
				comp.Message = fmt.Sprintf("%d 次交付违规", s.Violations)
				status.Status = "degraded"
			}
			status.Components[s.Variant] = comp
		}
		return status
	}
}
