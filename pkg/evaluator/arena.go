package evaluator

import (
	"fmt"

	"github.com/thomasrohde/chrono/pkg/ast"
)

// Flags describe how a continuation binds the value delivered to it.
type Flags uint16

const (
	AssignLocal Flags = 1 << iota
	AssignSpecial
	AssignEllipsis
	AssignWhileBack
	AssignWhileCond
	AssignFuncArg
	AssignSilent
	AssignEndInvocation
	AssignByRef

	// the value of control must be resolved before it is delivered
	forceValue
	// deliver a parked future's value, keeping visibility as it was
	resumeValue
)

// ContID is a generational handle into a state's continuation arena.
// The zero ContID is nil.
type ContID struct {
	idx uint32
	gen uint32
}

// Nil reports whether id refers to no continuation.
func (id ContID) Nil() bool { return id.gen == 0 }

func (id ContID) String() string {
	if id.Nil() {
		return "k<nil>"
	}
	return fmt.Sprintf("k%d.%d", id.idx, id.gen)
}

// cont is one continuation record: receive a value into target, then
// evaluate control in frame and deliver its value to next.
type cont struct {
	target  *ast.Symbol
	control ast.Expr
	frame   *Frame
	next    ContID
	flags   Flags

	invoke *invocation // native call to run instead of control
	slot   int         // positional argument slot in a native frame, or -1
	branch *ast.If     // choose a branch of this if with the delivered value
}

type arenaSlot struct {
	c    cont
	gen  uint32
	live bool
	mark bool
}

// arena owns the continuation records of one interpretation state.
type arena struct {
	slots    []arenaSlot
	free     []uint32
	live     int
	lastLive int
}

const arenaCompactMin = 4096

func (a *arena) alloc(c cont) ContID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.c = c
	s.live = true
	a.live++
	return ContID{idx: idx, gen: s.gen}
}

// get returns a copy of the record; records are never modified in place.
func (a *arena) get(id ContID) cont {
	if id.Nil() || int(id.idx) >= len(a.slots) {
		panic(fmt.Sprintf("evaluator: invalid continuation %s", id))
	}
	s := &a.slots[id.idx]
	if !s.live || s.gen != id.gen {
		panic(fmt.Sprintf("evaluator: stale continuation %s", id))
	}
	return s.c
}

func (a *arena) valid(id ContID) bool {
	if id.Nil() || int(id.idx) >= len(a.slots) {
		return false
	}
	s := &a.slots[id.idx]
	return s.live && s.gen == id.gen
}

func (a *arena) release(idx uint32) {
	s := &a.slots[idx]
	s.live = false
	s.c = cont{}
	a.free = append(a.free, idx)
	a.live--
}

// reset drops every record.
func (a *arena) reset() {
	a.slots = nil
	a.free = nil
	a.live = 0
	a.lastLive = 0
}

func (a *arena) needsCompaction() bool {
	return a.live >= arenaCompactMin && a.live >= 2*a.lastLive
}

// compact marks every record reachable from roots, following next links
// and the cached handles of frames seen on the way, and frees the rest.
func (a *arena) compact(roots []ContID, frames []*Frame) int {
	var work []ContID
	seen := make(map[*Frame]bool)
	visitFrame := func(f *Frame) {
		if f == nil || seen[f] {
			return
		}
		seen[f] = true
		work = append(work, f.begin, f.escape, f.current)
	}
	work = append(work, roots...)
	for _, f := range frames {
		visitFrame(f)
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if !a.valid(id) {
			continue
		}
		s := &a.slots[id.idx]
		if s.mark {
			continue
		}
		s.mark = true
		work = append(work, s.c.next)
		visitFrame(s.c.frame)
	}

	freed := 0
	for i := range a.slots {
		s := &a.slots[i]
		if s.mark {
			s.mark = false
			continue
		}
		if s.live {
			a.release(uint32(i))
			freed++
		}
	}
	a.lastLive = a.live
	return freed
}
