package sinks

import (
	"encoding/json"
	"io"
)

// Chip tags a register write's origin chip in a trace event.
type Chip string

const (
	ChipPSG    Chip = "psg"
	ChipFM     Chip = "fm"
	ChipSpeech Chip = "speech"
	ChipMixer  Chip = "mixer"
)

// Event is one captured register write, keyed by the engine tick it
// happened on. Grounded on sap_playback_bus_6502.go's SAPPOKEYEvent capture
// list (tick/register/value tuples recorded for later replay/inspection).
type Event struct {
	Tick     uint64 `json:"tick"`
	Chip     Chip   `json:"chip"`
	Register byte   `json:"register,omitempty"`
	Value    byte   `json:"value"`
}

// TraceSink is a PSGWriter/FMWriter/SpeechWriter/MixerWriter that records
// every write instead of driving real hardware or audio. It gives the
// spec.md S8.5 end-to-end scenarios, and cmd/soundrom's trace subcommand,
// a concrete "stream of chip-register writes" to assert against.
type TraceSink struct {
	Tick   func() uint64 // current engine tick, set by the caller
	events []Event
	busy   bool // simulated FM busy state, toggled by SetFMBusy for tests
	ready  bool // simulated speech ready state, defaults to true
}

// NewTraceSink returns a TraceSink with the speech/FM ready predicates
// defaulting to "always ready", matching an instantaneous emulator target
// rather than a hardware port with real latency (spec.md S4.1).
func NewTraceSink() *TraceSink {
	return &TraceSink{ready: true}
}

func (t *TraceSink) tick() uint64 {
	if t.Tick == nil {
		return 0
	}
	return t.Tick()
}

func (t *TraceSink) WritePSG(reg byte, value byte) {
	t.events = append(t.events, Event{Tick: t.tick(), Chip: ChipPSG, Register: reg, Value: value})
}

func (t *TraceSink) FMBusy() bool { return t.busy }

// SetFMBusy lets tests exercise the engine's busy-poll timeout path
// (spec.md S4.1, up to 255 polls then force the write through).
func (t *TraceSink) SetFMBusy(busy bool) { t.busy = busy }

func (t *TraceSink) WriteFM(reg byte, value byte) {
	t.events = append(t.events, Event{Tick: t.tick(), Chip: ChipFM, Register: reg, Value: value})
}

func (t *TraceSink) SpeechReady() bool { return t.ready }

// SetSpeechReady lets tests gate the speech streamer's byte-per-ready pace.
func (t *TraceSink) SetSpeechReady(ready bool) { t.ready = ready }

func (t *TraceSink) WriteSpeech(b byte) {
	t.events = append(t.events, Event{Tick: t.tick(), Chip: ChipSpeech, Value: b})
}

func (t *TraceSink) SetSqueak(b byte) {
	t.events = append(t.events, Event{Tick: t.tick(), Chip: ChipSpeech, Register: 0xFF, Value: b})
}

func (t *TraceSink) WriteMixer(b byte) {
	t.events = append(t.events, Event{Tick: t.tick(), Chip: ChipMixer, Value: b})
}

func (t *TraceSink) Pulse() {}

// Events returns every write captured so far, in order.
func (t *TraceSink) Events() []Event { return t.events }

// WriteJSONL dumps the captured events as newline-delimited JSON, one
// object per write, for cmd/soundrom's trace output mode (spec.md S6.5).
func (t *TraceSink) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range t.events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
