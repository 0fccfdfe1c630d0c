// Package sinks defines the write-only register sink interfaces the engine
// drives (spec.md S4.1/S6.3) and the concrete adapters that implement them:
// a register-write trace recorder, a real-time PCM renderer (oto-backed),
// and a headless no-op stub for CI/tests.
//
// Grounded on the teacher's audio_backend_oto.go/audio_backend_headless.go
// build-tag pair (identical method surface gated by !headless/headless)
// and sap_playback_bus_6502.go's SAPPOKEYEvent capture list.
package sinks

// PSGWriter accepts a register/value write for the POKEY-style PSG: the
// register index is one of AUDF1..AUDF4 (0,2,4,6), AUDC1..AUDC4 (1,3,5,7),
// or AUDCTL (8). Writes never fail (spec.md S4.1).
type PSGWriter interface {
	WritePSG(reg byte, value byte)
}

// PSG register indices (spec.md S6.3).
const (
	PSGAUDF1 = 0
	PSGAUDC1 = 1
	PSGAUDF2 = 2
	PSGAUDC2 = 3
	PSGAUDF3 = 4
	PSGAUDC3 = 5
	PSGAUDF4 = 6
	PSGAUDC4 = 7
	PSGAUDCTL = 8
)

// FMWriter accepts a register-select/data write for the YM2151, honoring a
// busy-ready predicate the engine must poll before every write (spec.md
// S4.1, up to 255 polls before forcing the write through).
type FMWriter interface {
	FMBusy() bool
	WriteFM(reg byte, value byte)
}

// SpeechWriter streams one LPC byte at a time to the TMS5220 (spec.md
// S4.1, S4.9), gated by a ready predicate, plus the "squeak" pitch-control
// side-port (spec.md S9.1).
type SpeechWriter interface {
	SpeechReady() bool
	WriteSpeech(b byte)
	SetSqueak(b byte)
}

// MixerWriter accepts the combined speech/effects/music coarse volume byte
// (spec.md S4.3 Type 13, S6.3).
type MixerWriter interface {
	WriteMixer(b byte)
}

// PulseSink models a value-less pulse: IRQ-ack, or a YM2151/TMS5220 reset
// line (spec.md S4.1).
type PulseSink interface {
	Pulse()
}

// Bus groups every sink the engine writes to. A single concrete type (such
// as *TraceSink or the PCM renderer) can implement Bus directly, or Bus can
// be assembled from independently-chosen adapters per concern.
type Bus struct {
	PSG         PSGWriter
	FM          FMWriter
	Speech      SpeechWriter
	Mixer       MixerWriter
	IRQAck      PulseSink
	FMReset     PulseSink
	SpeechReset PulseSink
}
