package engine

// ChipType identifies which hardware group a channel is currently routed
// to. The 6502 original folds this into the channel status byte; this
// port keeps it as its own field for clarity.
type ChipType uint8

const (
	ChipPSG ChipType = iota
	ChipFM
)

// Three-valued active-command states (spec.md S3.1 "Identity & liveness").
const (
	// CmdNone is not itself one of the spec's three values; it is the
	// zero value used before a channel has ever been allocated.
	CmdNone uint16 = 0

	// CmdFinished is the "finished-sentinel" value: a channel carrying it
	// is no longer live even if Status != 0, and is reclaimed by the
	// engine's next tick (spec.md S4.10 "Explicit stop").
	CmdFinished uint16 = 0xFFFF

	// CmdSpecialMarker flags a fade in progress (spec.md S4.3 Type 9/10,
	// opcode 0x97). It is OR'd into ActiveCmd rather than replacing it, so
	// the original command id stays readable in the low bits; a marked
	// channel no longer compares equal to its command id, so the
	// allocator's duplicate check does not count it.
	CmdSpecialMarker uint16 = 0x8000
)

// noLink is the linked-list terminator. The spec uses channel index 0 as
// its terminator with 1-based link values; this port instead uses -1 so
// channel index 0 is usable like any other slot (see DESIGN.md).
const noLink = -1

// ChannelCount is the number of logical channels (spec.md S3.1).
const ChannelCount = 30

// Channel is one logical channel's full record (spec.md S3.1).
type Channel struct {
	// Identity & liveness
	ActiveCmd uint16
	Status    byte // 0 = inactive; else encoded priority ((priority<<1)|1)
	HWType    ChipType

	// Sequence cursor
	SeqPtr       uint16
	ChainStack1  uint16 // segment-stack slot pushed by opcode 0x8D
	ChainStack2  uint16 // aux segment-stack slot pushed by opcode 0x8E
	ExtChainCtr  byte

	// Timers
	PrimaryTimer   uint16
	SecondaryTimer uint16

	// Note state
	BaseFreq        uint16 // 8-bit range for PSG channels, 16-bit for FM
	NoteByte        byte
	Transpose       int8
	Tempo           byte
	Vibrato         byte
	Portamento      int16
	LastDuration    uint16 // last-decoded primary-timer value, replayed by opcode 0x88
	LastSecDuration uint16 // last-decoded secondary-timer value, replayed by opcode 0x88
	ReleaseRate     byte   // opcode 0xA8
	FMVolVariant    byte   // classifier selector 4 (spec.md S4.5.5)

	// Volume envelope
	VolEnvPtr    uint16
	VolEnvPos    uint16
	VolEnvFrame  uint16
	VolModAccum  byte
	VolLoopCount byte
	VolLastPos   uint16
	BaseVolume   byte // 0..15
	DistMask     byte
	DistShape    byte

	// Frequency envelope
	FreqEnvPtr    uint16
	FreqEnvPos    uint16
	FreqEnvFrame  uint16
	FreqLoopCount byte
	FreqAccum     int32 // 24-bit accumulator, sign-extended in an int32
	FreqEnvRate   int16
	FreqFrac      uint16
	FreqEnvDone   bool
	VolEnvDone    bool

	// freqLoopSeeded tracks whether FreqLoopCount has been loaded from the
	// envelope table's loop-count byte for the 0xFF marker currently being
	// repeated (spec.md S4.6.1): the table, not whatever opcode 0x89 last
	// wrote into FreqLoopCount, is the source of truth the first time a
	// given marker is reached. Cleared whenever the envelope pointer is
	// (re)armed.
	freqLoopSeeded bool

	// Control bits (AUDCTL mask/bits for PSG, operator/algorithm bits for FM)
	CtrlAndMask byte
	CtrlOrBits  byte

	// Linkage: index of the next active channel in this hardware group's
	// priority-ordered list, or noLink.
	NextActive int

	// HintGroup is the active-list root this channel was linked into at
	// allocation time (spec.md S3.3 "hint"), retained so the channel can
	// unlink itself on termination without the caller needing to
	// remember which list it came from.
	HintGroup byte

	// General-purpose register and its shadow, addressed by VM opcodes
	// via the variable classifier (spec.md S4.5.5).
	Reg       uint16
	RegShadow uint16

	// FM shadow register block written by the VM, committed by the YM
	// writer (spec.md S4.8 "shadow area"). Indexed by register offset
	// within the channel's operator block (0x00..0x3F covers one
	// channel's four operators' worth of registers).
	FMShadow [0x40]byte

	// updateFlag is set when SecondaryTimer reaches 0, by a note frame and
	// by a voice load; for FM channels it requests a fresh Key-On, and the
	// YM writer clears it once that is written (spec.md S4.5.2).
	updateFlag bool

	// sounding tracks whether the channel currently has an audible note
	// (used by the YM writer to decide whether to emit the LFO/noise
	// byte and apply algorithm detune, spec.md S4.8).
	sounding bool
}

// Live reports whether a channel is live: status != 0 and its active
// command has not been marked finished (spec.md S3.1 invariant).
func (c *Channel) Live() bool {
	return c.Status != 0 && c.ActiveCmd != CmdFinished
}

// EncodedPriority packs a raw 0..15 priority into the status-byte
// encoding used for active-list ordering (spec.md Glossary).
func EncodedPriority(priority byte) byte {
	return (priority << 1) | 1
}

// reset clears all 48-ish fields back to zero, the first step of
// allocator initialization (spec.md S4.4 step 5).
func (c *Channel) reset() {
	*c = Channel{NextActive: noLink}
}
