package engine

import (
	"sync"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
)

// TickRateHz is the nominal scheduler rate (spec.md S5 "~245 Hz", S4.5.3's
// "120 is the nominal tick rate" refers to the per-chip 120 Hz alternation
// that falls out of a 240 Hz tick). cmd/soundrom's real-time playback mode
// paces Engine.Tick calls against this.
const TickRateHz = 240

// Engine ties every subsystem together: the channel array, bytecode VM,
// envelope pipeline, allocator, router, ingress ring, and the two
// alternating chip writers plus the speech/music streamer. It runs the
// fixed per-tick ordering of spec.md S5 and serializes ingress against the
// tick under a single coarse mutex, matching the source's single-threaded
// cooperative model rather than introducing finer-grained locking the
// short critical sections don't need.
//
// Grounded on coprocessor_manager.go's top-level Run loop (owns every
// subsystem, a single mutex guarding shared state, a tick counter driving
// alternation) adapted from its worker-dispatch loop to this fixed
// chip-alternation schedule.
type Engine struct {
	mu sync.Mutex

	Channels  [ChannelCount]Channel
	VM        *VM
	Pipeline  *Pipeline
	Allocator *Allocator
	Router    *Router
	Ingress   *Ingress
	POKEY     *POKEYWriter
	YM        *YMWriter
	Streamer  *Streamer
	Speech    *SpeechQueue

	scratch [16]byte
	egress  Ring

	errors *ErrorFlags
	logger *Logger

	tick uint64

	wasLive [ChannelCount]bool

	irqAck      sinks.PulseSink
	fmReset     sinks.PulseSink
	speechReset sinks.PulseSink
}

// Options configures an Engine at construction time. Any of the PSG, FM,
// Speech or Mixer sinks left nil gets a sinks.TraceSink; the IRQAck,
// FMReset and SpeechReset pulse sinks are optional and are simply not
// pulsed when nil.
type Options struct {
	ROM    *rom.ROM
	Bus    sinks.Bus
	Logger *Logger

	// FilterThreshold is the POKEY mixer's music_filter_threshold gate
	// (spec.md S9.2).
	FilterThreshold byte

	// Random supplies the PSG-random classified variable (spec.md S4.5.5
	// selector 5); defaults to an always-zero source if nil.
	Random func() byte
}

// New builds a fully wired Engine from a loaded ROM and a set of register
// sinks. It returns ErrROMRequired if opts.ROM is nil.
func New(opts Options) (*Engine, error) {
	if opts.ROM == nil {
		return nil, ErrROMRequired
	}

	e := &Engine{}
	e.logger = opts.Logger
	if e.logger == nil {
		e.logger = NewLogger(nil)
	}
	e.errors = &ErrorFlags{}

	bus := opts.Bus
	if bus.PSG == nil || bus.FM == nil || bus.Speech == nil || bus.Mixer == nil {
		trace := sinks.NewTraceSink()
		if bus.PSG == nil {
			bus.PSG = trace
		}
		if bus.FM == nil {
			bus.FM = trace
		}
		if bus.Speech == nil {
			bus.Speech = trace
		}
		if bus.Mixer == nil {
			bus.Mixer = trace
		}
	}

	e.Allocator = NewAllocator(&e.Channels)

	e.VM = &VM{
		ROM:     opts.ROM,
		Scratch: &e.scratch,
		Budget:  defaultBudget,
		Egress:  &e.egress,
		Random:  opts.Random,
		Errors:  e.errors,
		Logger:  e.logger,
	}
	e.VM.Submit = func(cmd byte) { e.submit(cmd) }

	e.Pipeline = &Pipeline{ROM: opts.ROM, Errors: e.errors, Logger: e.logger}

	e.Speech = &SpeechQueue{Errors: e.errors, Logger: e.logger}
	e.Streamer = &Streamer{ROM: opts.ROM, Queue: e.Speech}

	e.Router = &Router{
		ROM:       opts.ROM,
		Channels:  &e.Channels,
		Allocator: e.Allocator,
		Streamer:  e.Streamer,
		Egress:    &e.egress,
		speech:    bus.Speech,
		Mixer:     bus.Mixer,
		Errors:    e.errors,
		Logger:    e.logger,
	}

	e.Ingress = &Ingress{
		ROM:    opts.ROM,
		Errors: e.errors,
		Logger: e.logger,
	}
	// All three NMI-validation classes route to the same router dispatch;
	// the class only changed how fast the real hardware service routine
	// got entered, not which handler ran (spec.md S4.2).
	synchronous := func(cmd byte) { e.dispatch(cmd) }
	e.Ingress.NMI = [3]NMIHandler{synchronous, synchronous, synchronous}

	e.POKEY = &POKEYWriter{
		VM:              e.VM,
		Allocator:       e.Allocator,
		Sink:            bus.PSG,
		FilterThreshold: opts.FilterThreshold,
		Errors:          e.errors,
		Logger:          e.logger,
	}
	e.YM = &YMWriter{
		VM:        e.VM,
		Allocator: e.Allocator,
		Sink:      bus.FM,
		Errors:    e.errors,
		Logger:    e.logger,
	}
	// bus.FM doubles as a direct-observation port when it's backed by a PCM
	// renderer (cmd/soundrom's render/play paths construct Bus.FM from the
	// same *sinks.PCMBank as the main output); duck-type it instead of
	// depending on the sinks package's concrete type.
	if pcm, ok := bus.FM.(interface {
		SetFMNote(ch int, freq uint16, on bool)
	}); ok {
		e.YM.PCM = pcm
	}

	e.irqAck = bus.IRQAck
	e.fmReset = bus.FMReset
	e.speechReset = bus.SpeechReset
	e.pulseReset()

	return e, nil
}

// Reset clears the process-level error flags, stops every channel, and
// pulses the YM2151/TMS5220 reset lines (spec.md S6.3 "reset sinks for
// YM2151/TMS5220: value-less pulses"), matching a cold-boot of the sound
// coprocessor.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors.Clear()
	e.Allocator.Reset()
	for i := range e.wasLive {
		e.wasLive[i] = false
	}
	e.pulseReset()
}

func (e *Engine) pulseReset() {
	if e.fmReset != nil {
		e.fmReset.Pulse()
	}
	if e.speechReset != nil {
		e.speechReset.Pulse()
	}
}

// Push enqueues one host command byte (spec.md S4.2/S6.1). It is safe to
// call concurrently with Tick.
func (e *Engine) Push(cmd byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Ingress.Push(cmd)
}

// BufferFull reports the host-visible "sound buffer full" status bit
// (spec.md S6.2).
func (e *Engine) BufferFull() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Ingress.BufferFull()
}

// dispatch runs the router for one command, used both by Tick's drained
// ingress pop and by the synchronous NMI fast path; callers already hold
// e.mu.
func (e *Engine) dispatch(cmd byte) {
	e.Router.Dispatch(cmd)
}

// submit implements opcode 0x9A (spec.md S4.5.4 "recursively invoke router
// with arg as a command id"); it is called from within VM.Advance, which
// itself only ever runs under Tick's lock.
func (e *Engine) submit(cmd byte) {
	e.Router.Dispatch(cmd)
}

// Tick runs one full scheduler tick (spec.md S5): the fixed status/speech,
// chip-update, status/speech ordering, with POKEY and YM2151 alternating
// between odd and even ticks.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for cmd, ok := e.Ingress.Pop(); ok; cmd, ok = e.Ingress.Pop() {
		e.dispatch(cmd)
	}

	e.stepSpeech()
	e.stepSpeech()
	e.stepSpeech()
	e.Streamer.TickMusic()

	e.stepChannels()

	if e.tick%2 == 1 {
		e.POKEY.Run()
	} else {
		e.YM.Run()
	}

	e.stepSpeech()

	if e.irqAck != nil {
		e.irqAck.Pulse()
	}

	e.tick++
}

// stepSpeech runs one streamer sub-tick (spec.md S5 "Speech streaming
// updates at 960 Hz (4x per tick)").
func (e *Engine) stepSpeech() {
	e.Streamer.Stream(e.Router.speechSink())
}

// stepChannels decrements every live channel's timers, advances its VM
// when the primary timer underflows, runs the envelope pipeline (spec.md
// S4.5.2, S4.6), and reclaims any channel that just reached the end of
// its natural-end or explicit-stop path (spec.md S4.10).
func (e *Engine) stepChannels() {
	for i := range e.Channels {
		ch := &e.Channels[i]
		prevLive := e.wasLive[i]

		if !ch.Live() {
			if prevLive || ch.Status != 0 {
				e.reclaim(i, ch)
			}
			e.wasLive[i] = false
			continue
		}

		if ch.Tempo == 0 {
			ch.Tempo = 1
		}
		ch.PrimaryTimer = saturatingSub(ch.PrimaryTimer, ch.Tempo)
		ch.SecondaryTimer = saturatingSub(ch.SecondaryTimer, ch.Tempo)
		if ch.SecondaryTimer == 0 {
			ch.updateFlag = true
		}

		if ch.PrimaryTimer == 0 {
			e.VM.Advance(ch)
		}

		e.Pipeline.Step(ch)

		if !ch.Live() {
			e.reclaim(i, ch)
			e.wasLive[i] = false
			continue
		}
		e.wasLive[i] = true
	}
}

// reclaim runs the back half of spec.md S4.10's natural-end/explicit-stop
// path once a channel has just transitioned from live to not-live: it
// silences the appropriate chip (FM channels get a zero voice-load; PSG
// channels are silenced implicitly since a freed slot is never read by the
// writers again) and splices the channel out of its active list.
func (e *Engine) reclaim(idx int, ch *Channel) {
	if ch.HWType == ChipFM {
		e.YM.voiceLoadSilence(idx, ch)
	}
	e.Allocator.Release(idx)
	ch.reset()
}

// saturatingSub subtracts b from a, clamping at 0 (spec.md S4.5.2).
func saturatingSub(a uint16, b byte) uint16 {
	if uint16(b) >= a {
		return 0
	}
	return a - uint16(b)
}

// ErrorFlags returns the engine's process-level error-flag byte (spec.md
// S7), safe to poll concurrently with Tick.
func (e *Engine) ErrorFlags() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errors.Bits()
}

// Mixer returns the most recently committed (speech, effects, music)
// mixer split (spec.md S4.3 Type 13).
func (e *Engine) Mixer() (speech, effects, music byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Router.MixerSpeech, e.Router.MixerEffects, e.Router.MixerMusic
}

// ChannelSnapshot is a read-only view of one channel's state, used by
// cmd/soundrom's drive subcommand to print live channel/queue state
// (SPEC_FULL.md "Scripted scenario driver").
type ChannelSnapshot struct {
	Index     int
	Live      bool
	ActiveCmd uint16
	Status    byte
	HWType    ChipType
	SeqPtr    uint16
	Volume    byte
	Frequency uint16
}

// ChannelState returns a snapshot of one channel's state. It returns
// ErrChannelIndex if idx is outside 0..ChannelCount-1.
func (e *Engine) ChannelState(idx int) (ChannelSnapshot, error) {
	if idx < 0 || idx >= ChannelCount {
		return ChannelSnapshot{}, ErrChannelIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := &e.Channels[idx]
	return ChannelSnapshot{
		Index:     idx,
		Live:      ch.Live(),
		ActiveCmd: ch.ActiveCmd,
		Status:    ch.Status,
		HWType:    ch.HWType,
		SeqPtr:    ch.SeqPtr,
		Volume:    ch.EffectiveVolume(),
		Frequency: ch.EffectiveFrequency(),
	}, nil
}

// SpeechQueueLen reports how many requests are waiting behind the
// currently-playing music/speech stream (spec.md S4.9).
func (e *Engine) SpeechQueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Speech.Len()
}

// PopOutput drains one byte from the host-output egress queue (spec.md
// S4.3 Type 8), or returns (0, false) if nothing is queued. cmd/soundrom's
// script runner drains it when a script issues the "output" command.
func (e *Engine) PopOutput() (byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.egress.Pop()
}

// speechSink resolves the live speech/music byte sink for the Streamer:
// the Bus.Speech sink that Engine stored in the Router at construction.
func (rt *Router) speechSink() sinks.SpeechWriter { return rt.speech }
