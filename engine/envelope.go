package engine

import "github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"

// Pipeline runs the per-tick frequency and volume envelope resolution for
// every live channel (spec.md S4.6). It is stepped once per engine tick,
// after the VM has advanced the channel's sequence cursor and before the
// POKEY/YM writers commit registers.
//
// Grounded on ahx_replayer.go's PerformFrame envelope stepping (separate
// frequency-table and volume-table cursors, loop-count/backwards-offset
// handling, per-frame accumulate-then-clamp) adapted to this format's
// byte-stream envelope tables instead of AHX's instrument structs.
type Pipeline struct {
	ROM    *rom.ROM
	Errors *ErrorFlags
	Logger *Logger
}

// Step resolves one tick's worth of envelope state for a single channel.
// It is a no-op for a channel that isn't live.
func (p *Pipeline) Step(ch *Channel) {
	if !ch.Live() {
		return
	}
	p.stepFrequency(ch)
	p.stepVolume(ch)
}

// stepFrequency advances the 24-bit frequency accumulator by one envelope
// table entry per tick (spec.md S4.6.1): each table byte is a signed rate
// added into the accumulator, 0xFF begins a loop -- the next two table
// bytes are (loop-count, backwards-offset) -- and the envelope finishes
// once that count reaches 0. The loop count comes from the table the
// first time a given 0xFF marker is reached, not from whatever opcode
// 0x89 ("Repeat") last wrote into FreqLoopCount for an unrelated purpose;
// freqLoopSeeded tracks that one-time load so the table is the source of
// truth, and FreqLoopCount is decremented in place on every subsequent
// pass through the same marker.
func (p *Pipeline) stepFrequency(ch *Channel) {
	if ch.FreqEnvPtr == 0 || ch.FreqEnvDone {
		return
	}
	b := p.ROM.Byte(ch.FreqEnvPtr + ch.FreqEnvPos)
	if b == 0xFF {
		if !ch.freqLoopSeeded {
			ch.FreqLoopCount = p.ROM.Byte(ch.FreqEnvPtr + ch.FreqEnvPos + 1)
			ch.freqLoopSeeded = true
		}
		back := p.ROM.Byte(ch.FreqEnvPtr + ch.FreqEnvPos + 2)
		if ch.FreqLoopCount == 0 {
			ch.FreqEnvDone = true
			return
		}
		ch.FreqLoopCount--
		if back > 0 && back <= byte(ch.FreqEnvPos) {
			ch.FreqEnvPos -= uint16(back)
		}
		b = p.ROM.Byte(ch.FreqEnvPtr + ch.FreqEnvPos)
	}
	ch.FreqAccum += int32(int8(b)) + int32(ch.FreqEnvRate)
	ch.FreqEnvPos++
	ch.FreqEnvFrame++
}

// stepVolume advances the shaped volume envelope by one frame (spec.md
// S4.6.2): a table byte is saturating-accumulated into an 8-bit
// modulation value, looked up through the channel's distortion shape
// table, shifted right 4 to a 0..15 range, and OR'd with the distortion
// mask to produce the committed volume. A channel in a router-installed
// fade (spec.md S4.3 Type 9/10, flagged by the special-marker bit on
// active-command) instead counts BaseVolume down at a fixed rate and
// terminates the channel once it bottoms out, per the lifecycle's
// "volume envelope reaches 0" path (spec.md S4.10).
func (p *Pipeline) stepVolume(ch *Channel) {
	if ch.ActiveCmd&CmdSpecialMarker != 0 {
		p.stepFade(ch)
		return
	}
	if ch.VolEnvPtr == 0 || ch.VolEnvDone {
		return
	}
	b := p.ROM.Byte(ch.VolEnvPtr + ch.VolEnvPos)
	if b == 0xFF {
		if ch.VolLoopCount == 0 {
			ch.VolEnvDone = true
			return
		}
		ch.VolLoopCount--
		ch.VolEnvPos = ch.VolLastPos
		b = p.ROM.Byte(ch.VolEnvPtr + ch.VolEnvPos)
	} else {
		ch.VolLastPos = ch.VolEnvPos
	}

	sum := int(ch.VolModAccum) + int(int8(b))
	if sum < 0 {
		sum = 0
	}
	if sum > 0xFF {
		sum = 0xFF
	}
	ch.VolModAccum = byte(sum)

	shaped := p.ROM.VolShape[ch.DistShape&0x0F][ch.VolModAccum]
	ch.BaseVolume = (shaped >> 4) & 0x0F
	ch.VolEnvPos++
	ch.VolEnvFrame++
}

// stepFade counts a fading channel's volume down to silence.
func (p *Pipeline) stepFade(ch *Channel) {
	if ch.BaseVolume <= fadeDecayStep {
		ch.BaseVolume = 0
		ch.VolEnvDone = true
		ch.ActiveCmd = CmdFinished
		return
	}
	ch.BaseVolume -= fadeDecayStep
}

// EffectiveVolume returns the channel's committed 0..15 volume with its
// distortion mask applied (spec.md S4.6.2, consumed by the POKEY/YM
// writers).
func (ch *Channel) EffectiveVolume() byte {
	return (ch.BaseVolume & 0x0F) | (ch.DistMask & 0xF0)
}

// EffectiveFrequency adds the base frequency, the 24-bit frequency
// accumulator's integer part and the portamento slide, clamped to
// 0..0xFFFF, giving the value the POKEY/YM writers commit (spec.md
// S4.6.1). The Vibrato field is not used here.
func (ch *Channel) EffectiveFrequency() uint16 {
	v := int32(ch.BaseFreq) + (ch.FreqAccum >> 8) + int32(ch.Portamento)
	if v < 0 {
		v = 0
	}
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v)
}
