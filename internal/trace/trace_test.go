package trace

import "testing"

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Record(Event{Time: 1, Kind: KindSend, Seq: i})
	}
	h.Record(Event{Kind: KindTimeout})

	if h.Total() != 6 {
		t.Errorf("Total 不正确: got %d, want 6", h.Total())
	}
	if h.Count(KindSend) != 5 {
		t.Errorf("Count(send) 不正确: got %d, want 5", h.Count(KindSend))
	}

	events := h.Events(0)
	if len(events) != 3 {
		t.Fatalf("保留数量不正确: got %d, want 3", len(events))
	}
	if events[0].Kind != KindTimeout {
		t.Errorf("最新事件应在最前: got %s", events[0].Kind)
	}
	if events[2].Seq != 3 {
		t.Errorf("最旧保留事件不正确: got seq=%d, want 3", events[2].Seq)
	}
}

func TestTagAndFanout(t *testing.T) {
	a := NewHistory(10)
	b := NewHistory(10)
	sink := Tag("rdt3.1", Fanout{a, nil, b})

	sink.Record(Event{Kind: KindDeliver})

	for _, h := range []*History{a, b} {
		evs := h.Events(1)
		if len(evs) != 1 || evs[0].Variant != "rdt3.1" {
			t.Errorf("事件未被正确标记: %+v", evs)
		}
	}

	if Tag("x", nil) != Discard {
		t.Error("nil Sink 应返回 Discard")
	}
}
