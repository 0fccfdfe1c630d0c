package sinks

import (
	"math"
	"sync"
)

// PCMBank is a non-cycle-accurate software oscillator bank that turns the
// same register writes TraceSink observes into audio samples, satisfying
// spec.md S6.5's "rendered PCM... artifact" output mode. It is not a second
// source of truth for engine state: it only reads back the register writes
// the engine already made (spec.md S1 explicitly excludes cycle-accurate
// chip emulation).
//
// Grounded on pokey_engine.go's register-to-oscillator translation
// (AUDF/AUDC/AUDCTL semantics, per-channel clock selection), generalized to
// also host 8 FM sine oscillators and an LPC-amplitude passthrough.
type PCMBank struct {
	SampleRate int

	// mu guards every field below: the engine's tick loop writes registers
	// from one goroutine while OtoSink's player pulls samples from
	// another (spec.md S1 "portable audio engine" implies real-time
	// playback runs concurrently with simulation, unlike the trace/render
	// paths which are single-threaded).
	mu sync.Mutex

	psgFreq [4]byte
	psgVol  [4]byte
	audctl  byte

	fmFreq [8]uint16
	fmVol  [8]byte
	fmOn   [8]bool

	speechVal byte
	mixer     byte

	psgPhase [4]float64
	fmPhase  [8]float64
}

// NewPCMBank returns a bank with every oscillator silent until the engine
// starts writing registers.
func NewPCMBank(sampleRate int) *PCMBank {
	return &PCMBank{SampleRate: sampleRate}
}

func (b *PCMBank) WritePSG(reg byte, value byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case reg == PSGAUDCTL:
		b.audctl = value
	case reg < 8 && reg%2 == 0:
		b.psgFreq[reg/2] = value
	case reg < 8:
		b.psgVol[reg/2] = value
	}
}

func (b *PCMBank) FMBusy() bool { return false }

func (b *PCMBank) WriteFM(reg byte, value byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case reg == 0x08:
		b.fmOn[value&0x07] = true
	case reg >= 0x38 && reg < 0x40:
		ch := reg - 0x38
		b.fmVol[ch] = 127 - (value & 0x7F) // Total Level: lower register value is louder.
	}
}

func (b *PCMBank) SpeechReady() bool { return true }

func (b *PCMBank) WriteSpeech(v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speechVal = v
}

func (b *PCMBank) SetSqueak(byte) {}

func (b *PCMBank) WriteMixer(v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mixer = v
}

func (b *PCMBank) Pulse() {}

// SetFMNote lets the YM writer hand the bank a channel's current pitch and
// on/off state directly, since the committed register block alone (DT2/
// connection, DT1/MUL, Total Level) doesn't carry the note frequency the
// VM already resolved through the FM frequency table.
func (b *PCMBank) SetFMNote(ch int, freq uint16, on bool) {
	if ch < 0 || ch >= 8 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fmFreq[ch] = freq
	b.fmOn[ch] = on
}

// Sample renders one mono float32 sample in [-1, 1].
func (b *PCMBank) Sample() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out float64
	musicVol := float64(b.mixer&0x07) / 7.0
	fxVol := float64((b.mixer>>3)&0x03) / 3.0
	speechVol := float64((b.mixer>>5)&0x07) / 7.0

	for ch := 0; ch < 4; ch++ {
		freq := pokeyChannelFreq(b.psgFreq[ch])
		vol := float64(b.psgVol[ch]&0x0F) / 15.0
		if freq <= 0 || vol <= 0 {
			continue
		}
		b.psgPhase[ch] += freq / float64(b.SampleRate)
		b.psgPhase[ch] -= math.Trunc(b.psgPhase[ch])
		square := 1.0
		if b.psgPhase[ch] >= 0.5 {
			square = -1.0
		}
		out += square * vol * fxVol * 0.25
	}

	for ch := 0; ch < 8; ch++ {
		if !b.fmOn[ch] || b.fmFreq[ch] == 0 {
			continue
		}
		freq := float64(b.fmFreq[ch]) / 16.0
		b.fmPhase[ch] += freq / float64(b.SampleRate)
		b.fmPhase[ch] -= math.Trunc(b.fmPhase[ch])
		vol := float64(b.fmVol[ch]) / 127.0
		out += math.Sin(2*math.Pi*b.fmPhase[ch]) * vol * musicVol * 0.125
	}

	out += (float64(b.speechVal)/127.5 - 1.0) * speechVol * 0.25

	if out > 1 {
		out = 1
	}
	if out < -1 {
		out = -1
	}
	return float32(out)
}

// pokeyChannelFreq approximates POKEY's 64KHz-divided channel clock
// (pokey_engine.go's calcFrequency, simplified to the un-linked 8-bit AUDF
// case; 16-bit channel linking and the 1.79MHz/15KHz AUDCTL bits are out of
// scope for this non-cycle-accurate renderer).
func pokeyChannelFreq(audf byte) float64 {
	const clock = 1789790.0 / 28.0 // ~63920 Hz
	if audf == 0 {
		return 0
	}
	return clock / (2.0 * float64(audf+1))
}
