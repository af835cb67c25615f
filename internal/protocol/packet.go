// =============================================================================
// 文件: internal/protocol/packet.go
// 描述: 不可变分组 - 1 bit 序列号、载荷类型与 BLAKE2b 校验
// =============================================================================
package protocol

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// CorruptMarker 信道整体替换载荷时使用的标记
const CorruptMarker = "$H!T"

// PayloadKind 载荷类型
type PayloadKind uint8

const (
	KindData PayloadKind = iota
	KindAck0
	KindAck1
	KindCorrupt
)

func (k PayloadKind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindAck0:
		return "ACK0"
	case KindAck1:
		return "ACK1"
	case KindCorrupt:
		return CorruptMarker
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Packet 分组。字段只能通过构造函数设置, 收到的分组不会被修改。
type Packet struct {
	seq  uint8
	kind PayloadKind
	data string
	sum  uint64
}

// NewDataPacket 创建数据分组
func NewDataPacket(seq uint8, data string) Packet {
	if seq > 1 {
		panic(fmt.Sprintf("protocol: 序列号只能是 0 或 1, got %d", seq))
	}
	return Packet{
		seq:  seq,
		kind: KindData,
		data: data,
		sum:  checksum(seq, KindData, data),
	}
}

// NewAckPacket 创建 ACK 分组。分组自身的序列号对发送方无意义, 固定为 0。
func NewAckPacket(ack uint8) Packet {
	kind := KindAck0
	if ack == 1 {
		kind = KindAck1
	} else if ack != 0 {
		panic(fmt.Sprintf("protocol: ACK 序列号只能是 0 或 1, got %d", ack))
	}
	return Packet{
		seq:  0,
		kind: kind,
		sum:  checksum(0, kind, ""),
	}
}

// CorruptPacket 信道损坏后的分组 (载荷被替换为标记)
func CorruptPacket() Packet {
	return Packet{
		kind: KindCorrupt,
		data: CorruptMarker,
		sum:  checksum(0, KindCorrupt, CorruptMarker),
	}
}

// Seq 序列号
func (p Packet) Seq() uint8 { return p.seq }

// Kind 载荷类型
func (p Packet) Kind() PayloadKind { return p.kind }

// Data 应用数据
func (p Packet) Data() string { return p.data }

// Checksum 发送时计算的校验值
func (p Packet) Checksum() uint64 { return p.sum }

// Size 编码后的字节数
func (p Packet) Size() int { return 2 + len(p.data) }

// AckSeq 返回 ACK 携带的序列号, 非 ACK 分组返回 false
func (p Packet) AckSeq() (uint8, bool) {
	switch p.kind {
	case KindAck0:
		return 0, true
	case KindAck1:
		return 1, true
	default:
		return 0, false
	}
}

// IsCorrupt 分组是否损坏: 损坏标记、非法字段或校验不匹配
func (p Packet) IsCorrupt() bool {
	if p.kind >= KindCorrupt || p.seq > 1 {
		return true
	}
	return p.sum != checksum(p.seq, p.kind, p.data)
}

// WithFlippedBit 返回翻转了编码中第 bit 位后的新分组, 校验值保持不变
func (p Packet) WithFlippedBit(bit int) Packet {
	buf := encode(p.seq, p.kind, p.data)
	if bit < 0 {
		bit = -bit
	}
	bit %= len(buf) * 8
	buf[bit/8] ^= 1 << (bit % 8)

	return Packet{
		seq:  buf[0],
		kind: PayloadKind(buf[1]),
		data: string(buf[2:]),
		sum:  p.sum,
	}
}

func (p Packet) String() string {
	if p.kind == KindData {
		return fmt.Sprintf("Packet(seq=%d, data=%q)", p.seq, p.data)
	}
	return fmt.Sprintf("Packet(seq=%d, %s)", p.seq, p.kind)
}

func encode(seq uint8, kind PayloadKind, data string) []byte {
	buf := make([]byte, 2+len(data))
	buf[0] = seq
	buf[1] = byte(kind)
	copy(buf[2:], data)
	return buf
}

// checksum BLAKE2b-256 摘要的前 8 字节
func checksum(seq uint8, kind PayloadKind, data string) uint64 {
	h := blake2b.Sum256(encode(seq, kind, data))
	return binary.BigEndian.Uint64(h[:8])
}
