// =============================================================================
// 文件: internal/protocol/policy.go
// 描述: 协议版本策略 - rdt2.2 / rdt3.0 / rdt3.1 的三处差异
// =============================================================================
package protocol

import (
	"fmt"
	"strings"
)

// ErrUnknownVariant 未知协议版本
var ErrUnknownVariant = fmt.Errorf("未知协议版本")

// Variant 协议版本
type Variant string

const (
	RDT22 Variant = "rdt2.2"
	RDT30 Variant = "rdt3.0"
	RDT31 Variant = "rdt3.1"
)

// Variants 全部支持的版本
func Variants() []Variant {
	return []Variant{RDT22, RDT30, RDT31}
}

// ParseVariant 解析版本名, 接受 "rdt3.1" / "3.1" / "rdt31" / "RDT_3_1" 等写法
func ParseVariant(s string) (Variant, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.TrimPrefix(n, "rdt")
	n = strings.NewReplacer(".", "", "_", "", "-", "", " ", "").Replace(n)

	switch n {
	case "22":
		return RDT22, nil
	case "30", "3":
		return RDT30, nil
	case "31":
		return RDT31, nil
	}
	return "", fmt.Errorf("%w: %q (支持: rdt2.2, rdt3.0, rdt3.1)", ErrUnknownVariant, s)
}

// Reaction 对异常输入的反应
type Reaction uint8

const (
	ReactIgnore Reaction = iota // 什么都不做, 依赖计时器
	ReactResend                 // 立即重发保留的分组
)

func (r Reaction) String() string {
	if r == ReactResend {
		return "resend"
	}
	return "ignore"
}

// Policy 发送方行为差异
type Policy struct {
	Variant    Variant
	UsesTimer  bool
	OnCorrupt  Reaction
	OnStaleAck Reaction

	// rdt3.0: OnPacket 时若计时器未运行, 先执行一次超时动作
	ImplicitTimeoutWhenIdle bool
}

// PolicyFor 返回版本对应的策略
func PolicyFor(v Variant) (Policy, error) {
	switch v {
	case RDT22:
		return Policy{
			Variant:    RDT22,
			UsesTimer:  false,
			OnCorrupt:  ReactResend,
			OnStaleAck: ReactResend,
		}, nil
	case RDT30:
		return Policy{
			Variant:                 RDT30,
			UsesTimer:               true,
			OnCorrupt:               ReactIgnore,
			OnStaleAck:              ReactIgnore,
			ImplicitTimeoutWhenIdle: true,
		}, nil
	case RDT31:
		return Policy{
			Variant:    RDT31,
			UsesTimer:  true,
			OnCorrupt:  ReactIgnore,
			OnStaleAck: ReactIgnore,
		}, nil
	}
	return Policy{}, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
}

// MustPolicy 同 PolicyFor, 未知版本时 panic
func MustPolicy(v Variant) Policy {
	p, err := PolicyFor(v)
	if err != nil {
		panic(err)
	}
	return p
}

// RecoversFromLoss 是否能从纯丢包中恢复
func (p Policy) RecoversFromLoss() bool {
	return p.UsesTimer
}
