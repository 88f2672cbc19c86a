package codegen

import "github.com/greenhat/miden-ir/hir"

// frame assigns local slots to values. Slots are reused: a slot returns to
// the free list once its value's uses are exhausted, so the frame size is
// bounded by the maximum number of concurrently live slotted values rather
// than the total value count. A slot whose value dies inside a loop deeper
// than its definition is released only when the walk returns to the
// definition's loop depth, since the loop body re-reads it every
// iteration.
type frame struct {
	fnName string
	limit  int // 0 means unlimited

	slots map[hir.Value]slotInfo
	free  []int
	next  int // high-water mark, the eventual frame size

	deferred []deferredSlot
}

type slotInfo struct {
	slot  int
	depth int // loop depth at allocation
}

type deferredSlot struct {
	v     hir.Value
	depth int // release when the walk is back at this depth or shallower
}

func newFrame(fnName string, limit int) *frame {
	return &frame{
		fnName: fnName,
		limit:  limit,
		slots:  make(map[hir.Value]slotInfo),
	}
}

// ensure returns v's slot, allocating one at the given loop depth on first
// request. The lowest-numbered free slot is preferred so frames stay
// compact.
func (fr *frame) ensure(v hir.Value, depth int) (int, error) {
	if si, ok := fr.slots[v]; ok {
		return si.slot, nil
	}
	best := -1
	for n := range fr.free {
		if best < 0 || fr.free[n] < fr.free[best] {
			best = n
		}
	}
	if best >= 0 {
		s := fr.free[best]
		fr.free = append(fr.free[:best], fr.free[best+1:]...)
		fr.slots[v] = slotInfo{slot: s, depth: depth}
		return s, nil
	}
	if fr.limit > 0 && fr.next >= fr.limit {
		return 0, &SlotExhaustionError{Func: fr.fnName, Limit: fr.limit}
	}
	s := fr.next
	fr.next++
	fr.slots[v] = slotInfo{slot: s, depth: depth}
	return s, nil
}

// lookup returns v's slot without allocating.
func (fr *frame) lookup(v hir.Value) (int, bool) {
	si, ok := fr.slots[v]
	return si.slot, ok
}

// release frees v's slot. If the current depth is deeper than the
// allocation depth the whole release is deferred, binding included, until
// the walk leaves the intervening loops: the back edge still stores the
// value into the slot the loop header's loads were emitted against.
func (fr *frame) release(v hir.Value, depth int) {
	si, ok := fr.slots[v]
	if !ok {
		return
	}
	if depth > si.depth {
		fr.deferred = append(fr.deferred, deferredSlot{v: v, depth: si.depth})
		return
	}
	delete(fr.slots, v)
	fr.free = append(fr.free, si.slot)
}

// leaveLoop flushes deferred releases that became safe now that the walk
// is back at the given depth.
func (fr *frame) leaveLoop(depth int) {
	kept := fr.deferred[:0]
	for _, d := range fr.deferred {
		if d.depth >= depth {
			if si, ok := fr.slots[d.v]; ok {
				delete(fr.slots, d.v)
				fr.free = append(fr.free, si.slot)
			}
		} else {
			kept = append(kept, d)
		}
	}
	fr.deferred = kept
}
