// =============================================================================
// 文件: internal/runner/compare.go
// 描述: 多版本对比 - 相同配置与种子, 每个版本一个 goroutine
// =============================================================================
package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mrcgq/rdtsim/internal/config"
	"github.com/mrcgq/rdtsim/internal/protocol"
)

// NewComparison 为每个版本创建一个仿真
func NewComparison(cfg *config.Config, variants []protocol.Variant, opts ...Option) ([]*Simulation, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("compare: 版本列表为空")
	}
	sims := make([]*Simulation, 0, len(variants))
	for _, v := range variants {
		s, err := New(cfg, v, opts...)
		if err != nil {
			return nil, fmt.Errorf("compare: 创建 %s 仿真失败: %w", v, err)
		}
		sims = append(sims, s)
	}
	return sims, nil
}

// Compare 并发运行, 报告顺序与输入一致。任一仿真出错时取消其余仿真。
func Compare(ctx context.Context, sims ...*Simulation) ([]*Report, error) {
	reports := make([]*Report, len(sims))
	g, ctx := errgroup.WithContext(ctx)

	for i, s := range sims {
		i, s := i, s
		g.Go(func() error {
			r, err := s.Run(ctx)
			reports[i] = r
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
