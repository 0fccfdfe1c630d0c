package engine

import "github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"

// Opcode range (spec.md S4.5.1): a sequence byte in 0x80..0xBA is always an
// opcode with a fixed argument count, except 0xAE/0xAF whose length depends
// on a runtime classified-variable value (spec.md S9.1 "variable-length
// opcode interpreter"). 0xBB..0xFF terminates the sequence.
const (
	opTempoSet      = 0x80
	opTempoAdd      = 0x81
	opVolumeSet     = 0x82
	opFMDetune      = 0x83
	opTranspose     = 0x84
	opNoopGuard     = 0x85
	opEnvPtrFreq    = 0x86
	opEnvPtrVol     = 0x87
	opTimerReset    = 0x88
	opRepeat        = 0x89
	opDistortion    = 0x8A
	opCtrlOR        = 0x8B
	opCtrlANDOR     = 0x8C
	opSegPush       = 0x8D
	opSegPushAux    = 0x8E
	opSegPop        = 0x8F
	opModePSG       = 0x90
	opModeFM        = 0x91
	opPad92         = 0x92
	opPad93         = 0x93
	opPad94         = 0x94
	opPad95         = 0x95
	opHostOutput    = 0x96
	opEnvReset      = 0x97
	opPad98         = 0x98
	opAbsJump       = 0x99
	opSubmitCmd     = 0x9A
	opVarStore      = 0x9B
	opModeForcePSG  = 0x9C
	opVoiceLoad     = 0x9D
	opFMEnvParams   = 0x9E
	opFMRegBlock    = 0x9F
	opALUFreqOffset = 0xA0
	opALUNegate     = 0xA1
	opALUOr         = 0xA2
	opALUXor        = 0xA3
	opVarPairLoad   = 0xA4
	opShiftNop      = 0xA5
	opShiftLeft     = 0xA6
	opFreqAdd       = 0xA7
	opRelease       = 0xA8
	opVarAdd        = 0xA9
	opVarSub        = 0xAA
	opVarAnd        = 0xAB
	opVarOr         = 0xAC
	opVarXor        = 0xAD
	opVarLenJump    = 0xAE
	opVarLenJumpInc = 0xAF
	opVarReadToReg  = 0xB0
	opVarApply      = 0xB1
	opVarClassify   = 0xB2
	opVarShiftRight = 0xB3
	opVarShiftLeft  = 0xB4
	opBranchEQ      = 0xB5
	opBranchNE      = 0xB6
	opBranchPL      = 0xB7
	opBranchMI      = 0xB8
	opClassifiedSub = 0xB9
	opSubStore      = 0xBA

	opFirst = 0x80
	opLast  = 0xBA
	eosByte = 0xBB // sequence bytes >= this terminate the channel
)

// fixedArgCount gives the argument byte count for every opcode except
// 0xAE/0xAF, whose length is computed at dispatch time from a classified
// variable (spec.md S4.5.4, S9.1).
var fixedArgCount = [opLast - opFirst + 1]int{
	opTempoSet - opFirst:      1,
	opTempoAdd - opFirst:      1,
	opVolumeSet - opFirst:     1,
	opFMDetune - opFirst:      1,
	opTranspose - opFirst:     1,
	opNoopGuard - opFirst:     0,
	opEnvPtrFreq - opFirst:    2,
	opEnvPtrVol - opFirst:     2,
	opTimerReset - opFirst:    0,
	opRepeat - opFirst:        1,
	opDistortion - opFirst:    1,
	opCtrlOR - opFirst:        1,
	opCtrlANDOR - opFirst:     2,
	opSegPush - opFirst:       2,
	opSegPushAux - opFirst:    2,
	opSegPop - opFirst:        0,
	opModePSG - opFirst:       0,
	opModeFM - opFirst:        0,
	opPad92 - opFirst:         0,
	opPad93 - opFirst:         0,
	opPad94 - opFirst:         0,
	opPad95 - opFirst:         0,
	opHostOutput - opFirst:    1,
	opEnvReset - opFirst:      0,
	opPad98 - opFirst:         0,
	opAbsJump - opFirst:       2,
	opSubmitCmd - opFirst:     1,
	opVarStore - opFirst:      2,
	opModeForcePSG - opFirst:  0,
	opVoiceLoad - opFirst:     2,
	opFMEnvParams - opFirst:   2,
	opFMRegBlock - opFirst:    2,
	opALUFreqOffset - opFirst: 1,
	opALUNegate - opFirst:     1,
	opALUOr - opFirst:         1,
	opALUXor - opFirst:        1,
	opVarPairLoad - opFirst:   2,
	opShiftNop - opFirst:      0,
	opShiftLeft - opFirst:     0,
	opFreqAdd - opFirst:       1,
	opRelease - opFirst:       1,
	opVarAdd - opFirst:        2,
	opVarSub - opFirst:        2,
	opVarAnd - opFirst:        2,
	opVarOr - opFirst:         2,
	opVarXor - opFirst:        2,
	opVarLenJump - opFirst:    -1, // variable, see execVarLenJump
	opVarLenJumpInc - opFirst: -1,
	opVarReadToReg - opFirst:  1,
	opVarApply - opFirst:      1,
	opVarClassify - opFirst:   1,
	opVarShiftRight - opFirst: 1,
	opVarShiftLeft - opFirst:  1,
	opBranchEQ - opFirst:      3,
	opBranchNE - opFirst:      3,
	opBranchPL - opFirst:      3,
	opBranchMI - opFirst:      3,
	opClassifiedSub - opFirst: 2,
	opSubStore - opFirst:      2,
}

// defaultBudget is the per-tick, per-channel opcode budget (spec.md S7: "a
// per-tick budget (implementation-defined but >=8 frames per channel per
// tick)").
const defaultBudget = 16

// VM is the bytecode interpreter for one engine's worth of channels. It
// holds the pieces of shared state that sequence opcodes can reach:
// the ROM tables, the shared 16-byte scratch workspace (classifier
// selectors 6..21), the host-egress ring (opcode 0x96 / handler Type 8),
// and a callback to resubmit a command to the router (opcode 0x9A).
//
// Grounded on ahx_replayer.go's per-tick PlayIRQ/track-step state machine
// (sequence pointer advance, loop counters, note/duration decode) and
// spec.md S9.1's tagged-enumeration guidance for the opcode table.
type VM struct {
	ROM     *rom.ROM
	Scratch *[16]byte
	Budget  int

	Egress *Ring
	Submit func(cmd byte)
	Random func() byte

	Errors *ErrorFlags
	Logger *Logger
}

// Advance runs the channel's bytecode interpreter for up to one tick,
// re-entering the frame loop while an opcode's effect says to continue
// reading within the same tick, and stopping as soon as a note frame is
// read, the sequence terminates, or the channel yields (spec.md S4.5.4).
func (vm *VM) Advance(ch *Channel) {
	if !ch.Live() {
		return
	}
	budget := vm.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	for i := 0; i < budget; i++ {
		if !vm.step(ch) {
			return
		}
	}
	vm.Errors.set(ErrFlagGeneral, vm.Logger, "engine: channel sequence exceeded per-tick opcode budget", "budget", budget)
}

// step reads and executes one frame (note or opcode) at the channel's
// sequence pointer. It returns true if the frame loop should re-enter for
// another frame in the same tick, false if the channel should yield.
func (vm *VM) step(ch *Channel) bool {
	b0 := vm.ROM.Byte(ch.SeqPtr)
	switch {
	case b0 <= 0x7F:
		return vm.execNote(ch, b0)
	case b0 >= eosByte:
		vm.terminate(ch)
		return false
	default:
		return vm.execOpcode(ch, b0)
	}
}

// execNote decodes a 2-byte note frame (spec.md S4.5.1, S4.5.3) and arms the
// channel's timers. A byte1 of 0x00 is the channel-chain marker: pop the
// next segment off the stack instead of playing a note.
func (vm *VM) execNote(ch *Channel, freqByte byte) bool {
	b1 := vm.ROM.Byte(ch.SeqPtr + 1)
	ch.SeqPtr += 2

	if b1 == 0x00 {
		vm.popSegment(ch)
		return true
	}

	ch.NoteByte = freqByte
	durIdx := b1 & 0x0F
	dotted := b1&0x40 != 0
	sustain := b1&0x80 != 0
	secDiv := (b1 >> 4) & 0x03

	dur := vm.ROM.Duration[durIdx]
	if dotted {
		dur += dur / 2
	}
	ch.PrimaryTimer = dur
	ch.LastDuration = dur

	if sustain {
		ch.SecondaryTimer = 0x7F
	} else {
		divisors := [4]uint16{1, 2, 4, 8}
		ch.SecondaryTimer = dur / divisors[secDiv]
	}
	ch.LastSecDuration = ch.SecondaryTimer

	vm.applyNote(ch, freqByte)
	return false
}

// applyNote sets the channel's base frequency from a raw note byte,
// per chip type (spec.md S8.3: FM notes index fm_table[n], PSG notes are
// the raw 8-bit frequency value).
func (vm *VM) applyNote(ch *Channel, freqByte byte) {
	if freqByte == 0 {
		ch.sounding = false
		return
	}
	ch.sounding = true
	switch ch.HWType {
	case ChipFM:
		idx := int(freqByte) + int(ch.Transpose)
		if idx < 0 {
			idx = 0
		}
		if idx >= rom.FMFreqTableSize {
			idx = rom.FMFreqTableSize - 1
		}
		ch.BaseFreq = vm.ROM.FMFreq[idx]
	default:
		ch.BaseFreq = uint16(int16(freqByte) + int16(ch.Transpose))
	}
	ch.updateFlag = true
}

// terminate runs the natural-end path (spec.md S4.10): clear status and
// note state, the caller (Engine) is responsible for unlinking the channel
// from its active list, since that requires knowledge of the list heads
// the VM does not hold.
func (vm *VM) terminate(ch *Channel) {
	ch.Status = 0
	ch.sounding = false
	ch.VolEnvDone = true
	ch.FreqEnvDone = true
}

// popSegment implements opcode 0x8F and the byte1==0x00 channel-chain case:
// the aux chain slot (pushed by 0x8E) takes priority over the primary slot
// (pushed by 0x8D), mirroring a last-in-first-out segment stack.
func (vm *VM) popSegment(ch *Channel) {
	if ch.ChainStack2 != 0 {
		ch.SeqPtr = ch.ChainStack2
		ch.ChainStack2 = 0
		return
	}
	if ch.ChainStack1 != 0 {
		ch.SeqPtr = ch.ChainStack1
		ch.ChainStack1 = 0
		return
	}
	// Nothing to pop: treat as end of sequence rather than spinning on the
	// same pointer forever.
	vm.terminate(ch)
}

func (vm *VM) arg(ch *Channel, n int) byte {
	return vm.ROM.Byte(ch.SeqPtr + 1 + uint16(n))
}

func (vm *VM) arg16(ch *Channel, n int) uint16 {
	return vm.ROM.Word(ch.SeqPtr + 1 + uint16(n))
}

// execOpcode dispatches one opcode in 0x80..0xBA. Jump-style opcodes set
// ch.SeqPtr themselves and return directly; every other opcode falls
// through to the generic "advance past the opcode and its args" step at
// the bottom.
func (vm *VM) execOpcode(ch *Channel, op byte) bool {
	idx := int(op) - opFirst
	argc := fixedArgCount[idx]

	switch op {
	case opSegPush:
		ret := ch.SeqPtr + 1 + uint16(argc)
		target := vm.arg16(ch, 0)
		ch.ChainStack1 = ret
		ch.SeqPtr = target
		return true
	case opSegPushAux:
		ret := ch.SeqPtr + 1 + uint16(argc)
		target := vm.arg16(ch, 0)
		ch.ChainStack2 = ret
		ch.ExtChainCtr++
		ch.SeqPtr = target
		return true
	case opSegPop:
		vm.popSegment(ch)
		return true
	case opAbsJump:
		ch.SeqPtr = vm.arg16(ch, 0)
		return true
	case opVarLenJump, opVarLenJumpInc:
		vm.execVarLenJump(ch, op)
		return true
	case opBranchEQ, opBranchNE, opBranchPL, opBranchMI:
		vm.execBranch(ch, op)
		return true
	}

	switch op {
	case opTempoSet:
		ch.Tempo = vm.arg(ch, 0) >> 2
	case opTempoAdd:
		ch.Tempo += vm.arg(ch, 0)
	case opVolumeSet:
		ch.BaseVolume = vm.arg(ch, 0) & 0x0F
	case opFMDetune:
		if ch.ActiveCmd&CmdSpecialMarker == 0 {
			ch.FMVolVariant = vm.arg(ch, 0)
		}
	case opTranspose:
		ch.Transpose += int8(vm.arg(ch, 0))
	case opNoopGuard:
		// Effect is entirely in the guard: nothing to do once we're here.
	case opEnvPtrFreq:
		ch.FreqEnvPtr = vm.arg16(ch, 0)
		ch.FreqEnvPos = 0
		ch.FreqEnvFrame = 0
		ch.FreqLoopCount = 0
		ch.FreqEnvDone = false
		ch.freqLoopSeeded = false
	case opEnvPtrVol:
		ch.VolEnvPtr = vm.arg16(ch, 0)
		ch.VolEnvPos = 0
		ch.VolEnvFrame = 0
		ch.VolLoopCount = 0
		ch.VolEnvDone = false
	case opTimerReset:
		ch.PrimaryTimer = ch.LastDuration
		ch.SecondaryTimer = ch.LastSecDuration
	case opRepeat:
		n := vm.arg(ch, 0)
		ch.VolLoopCount = n
		ch.FreqLoopCount = n
	case opDistortion:
		ch.DistMask = vm.arg(ch, 0)
	case opCtrlOR:
		ch.CtrlOrBits |= vm.arg(ch, 0)
	case opCtrlANDOR:
		ch.CtrlAndMask = vm.arg(ch, 0)
		ch.CtrlOrBits |= vm.arg(ch, 1)
	case opModePSG:
		ch.HWType = ChipPSG
	case opModeFM:
		ch.HWType = ChipFM
	case opPad92, opPad93, opPad94, opPad95, opPad98:
		// No-op: read next frame.
	case opHostOutput:
		vm.Egress.Push(vm.arg(ch, 0), vm.Errors, vm.Logger)
	case opEnvReset:
		ch.FreqEnvPtr, ch.FreqEnvPos, ch.FreqEnvFrame, ch.FreqLoopCount, ch.FreqEnvDone = 0, 0, 0, 0, false
		ch.freqLoopSeeded = false
		ch.VolEnvPtr, ch.VolEnvPos, ch.VolEnvFrame, ch.VolLoopCount, ch.VolEnvDone = 0, 0, 0, 0, false
		ch.ActiveCmd |= CmdSpecialMarker
	case opSubmitCmd:
		if vm.Submit != nil {
			vm.Submit(vm.arg(ch, 0))
		}
	case opVarStore:
		vm.setVar(ch, vm.arg(ch, 0), uint16(vm.arg(ch, 1)))
	case opModeForcePSG:
		ch.HWType = ChipPSG
		ch.FMShadow = [0x40]byte{}
	case opVoiceLoad:
		vm.execVoiceLoad(ch, vm.arg16(ch, 0))
	case opFMEnvParams:
		ch.FreqEnvRate = int16(int8(vm.arg(ch, 0)))
		ch.DistShape = vm.arg(ch, 1)
	case opFMRegBlock:
		vm.execFMRegBlock(ch, vm.arg16(ch, 0))
	case opALUFreqOffset:
		ch.Reg += uint16(int16(int8(vm.arg(ch, 0))))
	case opALUNegate:
		ch.Reg = uint16(-int16(int8(vm.arg(ch, 0))))
	case opALUOr:
		ch.Reg |= uint16(vm.arg(ch, 0))
	case opALUXor:
		ch.Reg ^= uint16(vm.arg(ch, 0))
	case opVarPairLoad:
		ch.Reg = uint16(vm.arg(ch, 0))
		ch.RegShadow = uint16(vm.arg(ch, 1))
	case opShiftNop:
		// No-op.
	case opShiftLeft:
		ch.Reg <<= 1
	case opFreqAdd:
		ch.Portamento += int16(int8(vm.arg(ch, 0)))
	case opRelease:
		ch.ReleaseRate = vm.arg(ch, 0)
	case opVarAdd:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)+uint16(val))
	case opVarSub:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)-uint16(val))
	case opVarAnd:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)&uint16(val))
	case opVarOr:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)|uint16(val))
	case opVarXor:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)^uint16(val))
	case opVarReadToReg:
		ch.Reg = vm.getVar(ch, vm.arg(ch, 0))
	case opVarApply:
		vm.setVar(ch, vm.arg(ch, 0), ch.Reg)
	case opVarClassify:
		v := vm.getVar(ch, vm.arg(ch, 0))
		ch.Reg = classifySign(v)
	case opVarShiftRight:
		sel := vm.arg(ch, 0)
		vm.setVar(ch, sel, vm.getVar(ch, sel)>>1)
	case opVarShiftLeft:
		sel := vm.arg(ch, 0)
		vm.setVar(ch, sel, vm.getVar(ch, sel)<<1)
	case opClassifiedSub:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		v := vm.getVar(ch, sel) - uint16(val)
		vm.setVar(ch, sel, v)
		ch.Reg = classifySign(v)
	case opSubStore:
		sel, val := vm.arg(ch, 0), vm.arg(ch, 1)
		vm.setVar(ch, sel, vm.getVar(ch, sel)-uint16(val))
	}

	ch.SeqPtr += 1 + uint16(argc)
	return true
}

// classifySign maps a 16-bit value to the classified EQ/PL/MI-style
// register encoding used by opcode 0xB2 (0 stays 0, the high bit mirrors
// the sign).
func classifySign(v uint16) uint16 {
	if v == 0 {
		return 0
	}
	if int16(v) < 0 {
		return 0xFFFF
	}
	return 1
}

// execVarLenJump implements opcodes 0xAE/0xAF (spec.md S4.5.4, S9.1): the
// first argument byte selects the classified variable; if it is zero the
// next 2 bytes are a jump pointer, otherwise N*2 bytes are skipped (N being
// the variable's value) before the pointer is read. 0xAF additionally
// increments the variable.
func (vm *VM) execVarLenJump(ch *Channel, op byte) {
	sel := vm.arg(ch, 0)
	v := vm.getVar(ch, sel)
	var ptr uint16
	if v == 0 {
		ptr = vm.ROM.Word(ch.SeqPtr + 2)
	} else {
		ptr = vm.ROM.Word(ch.SeqPtr + 2 + 2*v)
	}
	if op == opVarLenJumpInc {
		vm.setVar(ch, sel, v+1)
	}
	ch.SeqPtr = ptr
}

// execBranch implements opcodes 0xB5..0xB8 (spec.md S4.5.4): classify the
// selector in arg0 and, if the condition holds, jump to the 16-bit pointer
// in args 1..2; otherwise discard the pointer and fall through to the next
// frame.
func (vm *VM) execBranch(ch *Channel, op byte) {
	sel := vm.arg(ch, 0)
	v := vm.getVar(ch, sel)
	var cond bool
	switch op {
	case opBranchEQ:
		cond = v == 0
	case opBranchNE:
		cond = v != 0
	case opBranchPL:
		cond = int16(v) >= 0
	case opBranchMI:
		cond = int16(v) < 0
	}
	if cond {
		ch.SeqPtr = vm.arg16(ch, 1)
		return
	}
	ch.SeqPtr += 1 + 3
}

// execVoiceLoad implements opcode 0x9D (spec.md S4.8): load 6 bytes per
// operator for 4 operators plus one algorithm/feedback byte into the
// channel's FM shadow area.
func (vm *VM) execVoiceLoad(ch *Channel, ptr uint16) {
	for op := 0; op < 4; op++ {
		for field := 0; field < 6; field++ {
			ch.FMShadow[op*6+field] = vm.ROM.Byte(ptr + uint16(op*6+field))
		}
	}
	ch.FMShadow[0x20] = vm.ROM.Byte(ptr + 24)
	ch.updateFlag = true
}

// execFMRegBlock implements opcode 0x9F: loads an 8-byte FM register block
// from pointer+0x29 into the channel's shadow area (spec.md S4.5.4).
func (vm *VM) execFMRegBlock(ch *Channel, ptr uint16) {
	base := ptr + 0x29
	for i := 0; i < 8; i++ {
		ch.FMShadow[0x28+i] = vm.ROM.Byte(base + uint16(i))
	}
}

// Classified-variable selectors (spec.md S4.5.5).
const (
	varBaseVolume = iota
	varTempo
	varTranspose
	varVolEnvPos
	varFMVolVariant
	varChipStatus // PSG random
	varScratchBase = 6
	varScratchEnd  = 21 // inclusive: 16 slots, 6..21
	varRegShadow   = 22
)

// getVar reads the logical variable selected by a 6-bit classifier value
// (spec.md S4.5.5): selectors 0..4 are named per-channel fields, 5 is a
// chip status register, 6..21 are the shared scratch workspace, and 22+ is
// the channel's register shadow.
func (vm *VM) getVar(ch *Channel, sel byte) uint16 {
	switch {
	case sel == varBaseVolume:
		return uint16(ch.BaseVolume)
	case sel == varTempo:
		return uint16(ch.Tempo)
	case sel == varTranspose:
		return uint16(ch.Transpose)
	case sel == varVolEnvPos:
		return ch.VolEnvPos
	case sel == varFMVolVariant:
		return uint16(ch.FMVolVariant)
	case sel == varChipStatus:
		if vm.Random != nil {
			return uint16(vm.Random())
		}
		return 0
	case sel >= varScratchBase && sel <= varScratchEnd:
		return uint16(vm.Scratch[sel-varScratchBase])
	default:
		return ch.RegShadow
	}
}

// setVar is getVar's write-side counterpart.
func (vm *VM) setVar(ch *Channel, sel byte, v uint16) {
	switch {
	case sel == varBaseVolume:
		ch.BaseVolume = byte(v) & 0x0F
	case sel == varTempo:
		ch.Tempo = byte(v)
	case sel == varTranspose:
		ch.Transpose = int8(v)
	case sel == varVolEnvPos:
		ch.VolEnvPos = v
	case sel == varFMVolVariant:
		ch.FMVolVariant = byte(v)
	case sel == varChipStatus:
		// Read-only chip status register: writes are discarded.
	case sel >= varScratchBase && sel <= varScratchEnd:
		vm.Scratch[sel-varScratchBase] = byte(v)
	default:
		ch.RegShadow = v
	}
}
