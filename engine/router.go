package engine

import (
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
)

// fadeDecayStep is the canonical decay rate Type 9/10 (and their Type 2/12
// generalizations) install on a fading channel (spec.md S4.3 "a known
// rate-pair"): BaseVolume counts down by this amount every tick until it
// reaches 0, at which point the channel is reclaimed per the lifecycle's
// "volume envelope reaches 0" path (spec.md S4.10).
const fadeDecayStep = 1

// Router is the two-level command dispatcher of spec.md S4.3: look up a
// command's handler type, load its parameter, and invoke the
// corresponding handler. It owns the pieces of engine state handler types
// reach into: the channel array (for stop/fade scans), the allocator (SFX
// path), the speech/music streamer, and the egress ring.
//
// Grounded on coprocessor_manager.go's request-type switch (a function
// table indexed by an enum, spec.md S9.1's "RTS trick" note) and
// music_common.go's fade/stop scan helpers.
type Router struct {
	ROM       *rom.ROM
	Channels  *[ChannelCount]Channel
	Allocator *Allocator
	Streamer  *Streamer
	Egress    *Ring
	speech    sinks.SpeechWriter
	Mixer     sinks.MixerWriter

	MixerSpeech  byte
	MixerEffects byte
	MixerMusic   byte

	// QuietDuringFade suppresses Type 13/14 mixer writes while a fade is in
	// progress (spec.md S4.3 "subject to a quiet during fade flag"). The
	// engine never sets it; it stays false unless a caller sets it.
	QuietDuringFade bool

	Errors *ErrorFlags
	Logger *Logger
}

// Dispatch runs steps 1-3 of spec.md S4.3 for one host command: handler
// lookup, parameter load, and invocation. A handler-type of 0xFF (or an
// out-of-range command) is silently ignored.
func (rt *Router) Dispatch(cmd byte) {
	handlerType := rt.ROM.HandlerType(cmd)
	if handlerType == rom.HandlerTypeInvalid {
		return
	}
	param := rt.ROM.Param(cmd)
	rt.invoke(handlerType, param, cmd)
}

func (rt *Router) invoke(handlerType, param byte, cmd byte) {
	switch handlerType {
	case rom.HandlerPreShift:
		// Type 0: ASL-equivalent twice (x4), fall through to the SFX
		// allocation path -- the canonical entry point for the vast
		// majority of sound commands (spec.md S4.3).
		rt.invoke(rom.HandlerPSGAllocate, param<<2, cmd)
	case rom.HandlerStopAll:
		rt.stopAll()
	case rom.HandlerStopByCmd:
		rt.stopByCmd(uint16(param))
	case rom.HandlerPSGAllocate:
		rt.Allocator.AllocateSFX(rt.ROM, param, uint16(cmd))
	case rom.HandlerOutputToHost:
		rt.Egress.Push(param, rt.Errors, rt.Logger)
	case rom.HandlerFadeByCmdID:
		rt.fadeByCmd(uint16(param))
	case rom.HandlerFadeByStatus:
		rt.fadeByStatus(param)
	case rom.HandlerMusicSpeech:
		rt.startMusicOrSpeech(cmd)
	case rom.HandlerVolumeMixer:
		rt.updateMixer(param)
	case rom.HandlerReserved1:
		// Type 1: stop by active-command value, the same stopByCmd call
		// Type 5 makes (spec.md S9.2).
		rt.stopByCmd(uint16(param))
	case rom.HandlerReserved2:
		// Type 2: fade by active-command value, the same fadeByCmd call
		// Type 9 makes (spec.md S9.2).
		rt.fadeByCmd(uint16(param))
	case rom.HandlerReserved4:
		// Type 4: generalizes Type 5 to match by status pattern instead of
		// active-command id (spec.md S9.2 "generalizations of Types 5/10").
		rt.stopByStatus(param)
	case rom.HandlerKillByChain:
		// Type 6: kill every channel in an SFX chain starting at the given
		// offset (spec.md S9.2 "kill... by chain").
		rt.killByChain(param)
	case rom.HandlerReserved12:
		// Type 12: generalizes Type 10, fading by chain rather than status
		// pattern (spec.md S9.2).
		rt.fadeByChain(param)
	case rom.HandlerReserved14:
		// Type 14: mixer update restricted to the music field only, the
		// counterpart to Type 13's full three-field split (spec.md S9.2
		// gives no further detail; this is the implementer's choice).
		if !rt.QuietDuringFade {
			rt.MixerMusic = param & 0x07
			rt.writeMixer()
		}
	}
}

func (rt *Router) stopAll() {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() {
			ch.ActiveCmd = CmdFinished
		}
	}
}

func (rt *Router) stopByCmd(cmd uint16) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && ch.ActiveCmd == cmd {
			ch.ActiveCmd = CmdFinished
		}
	}
}

func (rt *Router) stopByStatus(pattern byte) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && (ch.Status>>2) == pattern {
			ch.ActiveCmd = CmdFinished
		}
	}
}

// killByChain and fadeByChain match channels by sequence pointer rather
// than active-command id: a chain offset has no command id of its own
// (only the Type 7 path that originally allocated from it does), but
// every channel the chain could have spawned carries the primary or
// alternate pointer of one of its entries as its SeqPtr.
func (rt *Router) killByChain(offset byte) {
	for i := 0; i < maxChainLength; i++ {
		entry := rt.ROM.SFX[offset]
		rt.stopBySeqPtr(entry.Primary, entry.Alternate)
		if entry.ChainNext == 0 {
			return
		}
		offset = entry.ChainNext
	}
}

func (rt *Router) stopBySeqPtr(primary, alternate uint16) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && (ch.SeqPtr == primary || ch.SeqPtr == alternate) {
			ch.ActiveCmd = CmdFinished
		}
	}
}

// fadeByCmd and fadeByStatus install the canonical decay envelope on every
// matching channel and set the special-marker to prevent the VM from
// rearming the envelope pointer (spec.md S4.3 Type 9/10).
func (rt *Router) fadeByCmd(cmd uint16) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && ch.ActiveCmd == cmd {
			rt.installFade(ch)
		}
	}
}

func (rt *Router) fadeByStatus(pattern byte) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && (ch.Status>>2) == pattern {
			rt.installFade(ch)
		}
	}
}

func (rt *Router) fadeByChain(offset byte) {
	for i := 0; i < maxChainLength; i++ {
		entry := rt.ROM.SFX[offset]
		rt.fadeBySeqPtr(entry.Primary, entry.Alternate)
		if entry.ChainNext == 0 {
			return
		}
		offset = entry.ChainNext
	}
}

func (rt *Router) fadeBySeqPtr(primary, alternate uint16) {
	for i := range rt.Channels {
		ch := &rt.Channels[i]
		if ch.Live() && (ch.SeqPtr == primary || ch.SeqPtr == alternate) {
			rt.installFade(ch)
		}
	}
}

// installFade flips a channel into the fade-in-progress state: the
// envelope pipeline takes over decaying BaseVolume once it sees the
// special-marker bit, instead of the channel's own table-driven volume
// envelope (spec.md S4.3 Type 9/10 "set the special-marker on
// active-command to prevent rearming").
func (rt *Router) installFade(ch *Channel) {
	ch.ActiveCmd |= CmdSpecialMarker
}

// startMusicOrSpeech implements spec.md S4.3 Type 11: start immediately if
// nothing is playing, otherwise enqueue into the speech priority queue. The
// music/speech metadata table is indexed by command id directly (spec.md
// S3.4 "per command"), not by the command's parameter byte.
//
// rom.MusicFlagSpecialMode (bit 7, spec.md S3.4) drives the TMS5220
// "squeak" pitch-control side-port (spec.md S9.1) directly from the
// dispatch path, independent of whether the request starts immediately or
// is queued -- the squeak write is a side effect of the command, not of
// playback actually beginning. rom.MusicFlagSpeech (bit 6) is the
// implementer's choice of speech/music discriminator, documented in
// DESIGN.md since it diverges from spec.md's own bit-7 meaning.
func (rt *Router) startMusicOrSpeech(cmd byte) {
	meta := rt.ROM.Music[cmd]
	seq := rt.ROM.Seq[meta.SeqIndex]
	req := PlaybackRequest{
		Pointer:  seq.Pointer,
		Length:   seq.Length,
		Priority: meta.Flags & 0x0F,
		IsSpeech: meta.Flags&rom.MusicFlagSpeech != 0,
	}
	if meta.Flags&rom.MusicFlagSpecialMode != 0 {
		rt.speech.SetSqueak(meta.TempoOverride)
	}
	if rt.Streamer.Active() {
		rt.Streamer.Queue.Enqueue(req)
		return
	}
	rt.Streamer.Start(req)
}

// updateMixer implements spec.md S4.3 Type 13: split the parameter into
// (speech, effects, music) fields and commit the composed byte to the
// coarse mixer sink (spec.md S4.1 "accepts a single byte combining three
// volume fields"). The bit layout (music bits 0..2, effects bits 3..4,
// speech bits 5..7) matches the PCM renderer's mixer read-back so both
// sides agree on the parameter's meaning.
func (rt *Router) updateMixer(param byte) {
	if rt.QuietDuringFade {
		return
	}
	rt.MixerMusic = param & 0x07
	rt.MixerEffects = (param >> 3) & 0x03
	rt.MixerSpeech = (param >> 5) & 0x07
	rt.writeMixer()
}

// writeMixer composes the current (speech, effects, music) split back into
// a single byte and commits it to the coarse mixer sink, mirroring
// updateMixer's bit layout. A nil Mixer (a Router built without one) is a
// silent no-op, matching the other optional-sink fields' style.
func (rt *Router) writeMixer() {
	if rt.Mixer == nil {
		return
	}
	rt.Mixer.WriteMixer(rt.MixerMusic | rt.MixerEffects<<3 | rt.MixerSpeech<<5)
}
