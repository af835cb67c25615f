// =============================================================================
// 文件: internal/protocol/packet_test.go
// 描述: 分组与版本策略测试
// =============================================================================
package protocol

import (
	"errors"
	"testing"
)

func TestPacketConstructors(t *testing.T) {
	t.Run("数据分组", func(t *testing.T) {
		p := NewDataPacket(1, "hello")
		if p.Seq() != 1 || p.Kind() != KindData || p.Data() != "hello" {
			t.Errorf("字段不正确: %s", p)
		}
		if p.IsCorrupt() {
			t.Error("新建分组不应损坏")
		}
		if _, ok := p.AckSeq(); ok {
			t.Error("数据分组不是 ACK")
		}
	})

	t.Run("ACK 分组", func(t *testing.T) {
		for _, seq := range []uint8{0, 1} {
			p := NewAckPacket(seq)
			ack, ok := p.AckSeq()
			if !ok || ack != seq {
				t.Errorf("AckSeq 不正确: got %d/%v, want %d", ack, ok, seq)
			}
			if p.Seq() != 0 {
				t.Errorf("ACK 分组自身序列号应为 0: got %d", p.Seq())
			}
			if p.IsCorrupt() {
				t.Error("ACK 不应损坏")
			}
		}
	})

	t.Run("损坏标记", func(t *testing.T) {
		p := CorruptPacket()
		if !p.IsCorrupt() {
			t.Error("损坏标记分组应被识别")
		}
		if p.Data() != CorruptMarker {
			t.Errorf("载荷应为损坏标记: got %q", p.Data())
		}
	})

	t.Run("非法序列号", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("序列号 2 应 panic")
			}
		}()
		NewDataPacket(2, "x")
	})
}

func TestPacketBitFlip(t *testing.T) {
	orig := NewDataPacket(0, "payload")

	for bit := 0; bit < orig.Size()*8; bit++ {
		flipped := orig.WithFlippedBit(bit)
		if !flipped.IsCorrupt() {
			t.Fatalf("翻转第 %d 位后应被识别为损坏: %s", bit, flipped)
		}
	}

	// 原分组保持不变
	if orig.IsCorrupt() || orig.Data() != "payload" || orig.Seq() != 0 {
		t.Errorf("原分组被修改: %s", orig)
	}

	ack := NewAckPacket(1).WithFlippedBit(3)
	if !ack.IsCorrupt() {
		t.Error("翻转后的 ACK 应被识别为损坏")
	}
}

func TestParseVariant(t *testing.T) {
	cases := map[string]Variant{
		"rdt2.2":  RDT22,
		"2.2":     RDT22,
		"RDT22":   RDT22,
		"rdt3.0":  RDT30,
		"3":       RDT30,
		"rdt_3_1": RDT31,
		" 3.1 ":   RDT31,
	}
	for in, want := range cases {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseVariant("rdt4.0"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("未知版本应返回 ErrUnknownVariant: got %v", err)
	}
}

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		v          Variant
		timer      bool
		corrupt    Reaction
		stale      Reaction
		implicitTO bool
	}{
		{RDT22, false, ReactResend, ReactResend, false},
		{RDT30, true, ReactIgnore, ReactIgnore, true},
		{RDT31, true, ReactIgnore, ReactIgnore, false},
	}
	for _, c := range cases {
		p, err := PolicyFor(c.v)
		if err != nil {
			t.Fatalf("PolicyFor(%s): %v", c.v, err)
		}
		if p.UsesTimer != c.timer || p.OnCorrupt != c.corrupt ||
			p.OnStaleAck != c.stale || p.ImplicitTimeoutWhenIdle != c.implicitTO {
			t.Errorf("%s 策略不正确: %+v", c.v, p)
		}
		if p.RecoversFromLoss() != c.timer {
			t.Errorf("%s RecoversFromLoss 不正确", c.v)
		}
	}

	if _, err := PolicyFor("bogus"); err == nil {
		t.Error("未知版本应返回错误")
	}
}
