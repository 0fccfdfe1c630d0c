package engine

import "github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"

// ringCapacity is the fixed size of both the command ingress buffer and the
// host-output egress ring (spec.md S4.2, S4.3 Type 8).
const ringCapacity = 16

// Ring is a fixed-capacity circular byte buffer with an oldest-dropped
// overflow policy, shared by the command ingress queue and the Type 8
// host-output egress queue (spec.md S4.2 "if the write index meets the
// read index the read index is also advanced").
//
// Grounded on coprocessor_manager_test.go's doc-commented mailbox ring
// (head/tail indices, fixed capacity, oldest-dropped semantics).
type Ring struct {
	buf        [ringCapacity]byte
	head, tail int
	count      int
}

// Push writes one byte, dropping the oldest entry first if the ring is
// already full.
func (r *Ring) Push(b byte, errs *ErrorFlags, lg *Logger) {
	if r.count == ringCapacity {
		r.tail = (r.tail + 1) % ringCapacity
		r.count--
		errs.set(ErrFlagGeneral, lg, "engine: ring buffer full, dropping oldest entry")
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % ringCapacity
	r.count++
}

// Pop reads the oldest byte, or (0, false) if the ring is empty.
func (r *Ring) Pop() (byte, bool) {
	if r.count == 0 {
		return 0, false
	}
	b := r.buf[r.tail]
	r.tail = (r.tail + 1) % ringCapacity
	r.count--
	return b, true
}

// Len reports the ring's current occupancy.
func (r *Ring) Len() int { return r.count }

// Full reports whether the ring is at capacity.
func (r *Ring) Full() bool { return r.count == ringCapacity }

// NMIHandler is a fast-path handler invoked synchronously from Ingress.Push
// for commands whose NMI-validation class is 0..2 (spec.md S4.2),
// bypassing the ingress ring entirely.
type NMIHandler func(cmd byte)

// Ingress is the host command wire's circular buffer (spec.md S4.2). A
// command whose NMI-validation class is 0..2 is dispatched synchronously
// via the 3-entry jump table in NMI; otherwise it is stored in the ring for
// the tick pipeline to Pop.
type Ingress struct {
	ring Ring
	ROM  *rom.ROM
	NMI  [3]NMIHandler

	Errors *ErrorFlags
	Logger *Logger
}

// BufferFull reports the "sound buffer full" status bit (spec.md S6.2) a
// host must respect before calling Push.
func (ing *Ingress) BufferFull() bool { return ing.ring.Full() }

// Push enqueues one host command byte, or dispatches it immediately if its
// NMI-validation class calls for synchronous handling (spec.md S4.2).
func (ing *Ingress) Push(cmd byte) {
	if int(cmd) < rom.CommandCount {
		class := ing.ROM.NMIClass(cmd)
		if class <= rom.NMIClass2 {
			if h := ing.NMI[class]; h != nil {
				h(cmd)
			}
			return
		}
	}
	ing.ring.Push(cmd, ing.Errors, ing.Logger)
}

// Pop reads one command for the tick pipeline to dispatch, or (0, false)
// if the ring is empty (spec.md S4.2 "reads one command per iteration...
// or none if empty").
func (ing *Ingress) Pop() (byte, bool) { return ing.ring.Pop() }
