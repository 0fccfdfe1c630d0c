package engine

import "errors"

// Error-flag bits latched in the process-level error-flag byte (spec.md S7).
// Bit positions mirror the byte a host could poll on real hardware; nothing
// here stops the tick loop, these are recoverable *engine errors* as opposed
// to fatal *data errors* (which are returned from ROM/engine construction).
const (
	// ErrFlagRAMSelfTest is bit 0: the boot RAM self-test failure. Out of
	// scope for this core (spec.md S1) -- always clear here, kept so the
	// byte's bit layout matches the host-visible status register of S6.2.
	ErrFlagRAMSelfTest = 1 << iota

	// ErrFlagFMBusyTimeout is bit 1: the YM2151 busy predicate never
	// cleared within 255 polls, so the writer forced the write through
	// (spec.md S4.1, S4.8, S5 "Suspension points").
	ErrFlagFMBusyTimeout

	// ErrFlagGeneral is bit 2: a general engine error -- the host-egress
	// ring overflowed (Type 8, spec.md S4.3), the command ingress ring
	// dropped a byte, the speech queue was full, or a channel's sequence
	// reader exceeded its per-tick opcode budget without yielding a frame
	// (spec.md S7 "pathological sequence").
	ErrFlagGeneral
)

// ErrROMRequired is returned by engine constructors when no ROM is supplied.
var ErrROMRequired = errors.New("engine: a loaded ROM is required")

// ErrChannelIndex is returned by APIs that take a raw channel index outside
// 0..ChannelCount-1.
var ErrChannelIndex = errors.New("engine: channel index out of range")

// ErrorFlags is the process-level error-flag byte (spec.md S7), exposed
// read-only via Engine.ErrorFlags.
type ErrorFlags struct {
	bits byte
}

// Set latches a bit and logs the transition if it was previously clear.
func (f *ErrorFlags) set(bit byte, lg *Logger, msg string, args ...any) {
	if f.bits&bit == 0 {
		lg.Warn(msg, args...)
	}
	f.bits |= bit
}

// Clear clears every bit (used by Engine.Reset).
func (f *ErrorFlags) Clear() { f.bits = 0 }

// Bits returns the raw error-flag byte.
func (f *ErrorFlags) Bits() byte { return f.bits }

// Has reports whether a given bit is set.
func (f *ErrorFlags) Has(bit byte) bool { return f.bits&bit != 0 }
