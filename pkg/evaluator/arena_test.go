package evaluator

import "testing"

func TestArena_AllocGet(t *testing.T) {
	var a arena
	id := a.alloc(cont{slot: 3})
	if id.Nil() {
		t.Fatal("allocated id should not be nil")
	}
	if got := a.get(id).slot; got != 3 {
		t.Errorf("slot = %d, want 3", got)
	}
	if !a.valid(id) {
		t.Error("fresh id should be valid")
	}
}

func TestArena_StaleHandle(t *testing.T) {
	var a arena
	id := a.alloc(cont{slot: -1})
	a.release(id.idx)
	reused := a.alloc(cont{slot: -1})
	if reused.idx != id.idx {
		t.Fatalf("slot should be reused: %s vs %s", reused, id)
	}
	if a.valid(id) {
		t.Error("old generation should be invalid after reuse")
	}
	defer func() {
		if recover() == nil {
			t.Error("get on a stale handle should panic")
		}
	}()
	a.get(id)
}

func TestArena_Compact(t *testing.T) {
	var a arena
	tail := a.alloc(cont{slot: -1})
	head := a.alloc(cont{next: tail, slot: -1})
	garbage := a.alloc(cont{slot: -1})

	loop := NewShadowFrame("while", nil)
	loop.begin = a.alloc(cont{slot: -1})
	viaFrame := a.alloc(cont{slot: -1})
	loop.current = viaFrame
	held := a.alloc(cont{frame: loop, slot: -1})

	freed := a.compact([]ContID{head, held}, nil)
	if freed != 1 {
		t.Errorf("freed = %d, want 1", freed)
	}
	for _, id := range []ContID{head, tail, held, loop.begin, viaFrame} {
		if !a.valid(id) {
			t.Errorf("%s should survive compaction", id)
		}
	}
	if a.valid(garbage) {
		t.Error("unreachable record should be freed")
	}
	if a.live != 5 || a.lastLive != 5 {
		t.Errorf("live = %d, lastLive = %d", a.live, a.lastLive)
	}
}

func TestArena_CompactionThreshold(t *testing.T) {
	var a arena
	for range arenaCompactMin - 1 {
		a.alloc(cont{slot: -1})
	}
	if a.needsCompaction() {
		t.Error("below the minimum size")
	}
	a.alloc(cont{slot: -1})
	if !a.needsCompaction() {
		t.Error("at the minimum size with no previous compaction")
	}
	a.compact(nil, nil)
	if a.live != 0 || a.needsCompaction() {
		t.Errorf("live = %d after compacting with no roots", a.live)
	}
}

func TestStatePop_ClearsFrame(t *testing.T) {
	st := &State{}
	f := newClosureFrame("f", nil)
	f.escape = st.arena.alloc(cont{slot: -1})
	st.push(f)
	st.use.Depth = 1
	st.pop()
	if !f.escape.Nil() {
		t.Error("popped frame should drop its cached continuations")
	}
	if st.use.Depth != 0 {
		t.Errorf("depth = %d", st.use.Depth)
	}
}
