package engine

import "github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"

// pokeyPhysicalVoices and pokeyPairs give the POKEY's 4-voice, 2-pair
// hardware layout (spec.md S4.7). Hints 4..11 address the 8 logical
// active-list slots (primary/secondary per physical voice).
const (
	pokeyPhysicalVoices = 4
	pokeyPairs          = 2
	pokeyHintBase       = 4
)

// POKEYWriter runs the odd-tick PSG update (spec.md S4.7): for each of the
// 4 physical voices, the primary and secondary logical channel assigned to
// it both get one VM step, and the louder of the two (subject to
// FilterThreshold) is written out. Physical voices are processed in pairs
// so their AUDCTL contributions can be merged into a single write.
//
// Grounded on pokey_engine.go's voice-pair AUDCTL merge (AND-mask/OR-bits
// accumulation across two logical sources before a single register write)
// and ahx_replayer.go's per-voice VM-advance-then-commit step.
type POKEYWriter struct {
	VM        *VM
	Allocator *Allocator
	Sink      sinks.PSGWriter

	// FilterThreshold is the "music_filter_threshold" minimum-volume gate
	// (spec.md S9.2): the primary logical channel's selection only loses to
	// the secondary when the primary's volume is at or below this value.
	FilterThreshold byte

	Errors *ErrorFlags
	Logger *Logger
}

// pokeyAUDF/pokeyAUDC map a 0-indexed physical voice number to its POKEY
// register index (spec.md S6.3).
var pokeyAUDF = [pokeyPhysicalVoices]byte{sinks.PSGAUDF1, sinks.PSGAUDF2, sinks.PSGAUDF3, sinks.PSGAUDF4}
var pokeyAUDC = [pokeyPhysicalVoices]byte{sinks.PSGAUDC1, sinks.PSGAUDC2, sinks.PSGAUDC3, sinks.PSGAUDC4}

type pokeyVoiceResult struct {
	freq    uint16
	vol     byte
	andMask byte
	orBits  byte
}

// Run commits one odd-tick POKEY update across all 4 physical voices.
func (w *POKEYWriter) Run() {
	for pair := 0; pair < pokeyPairs; pair++ {
		var merged byte = 0xFF // AUDCTL AND-mask accumulator, starts all-bits-set
		var orBits byte
		results := make([]pokeyVoiceResult, 0, pokeyPhysicalVoices/pokeyPairs)

		for v := 0; v < pokeyPhysicalVoices/pokeyPairs; v++ {
			voice := pair*(pokeyPhysicalVoices/pokeyPairs) + v
			res := w.resolveVoice(voice)
			merged &= res.andMask
			orBits |= res.orBits
			results = append(results, res)
		}

		for v, res := range results {
			voice := pair*(pokeyPhysicalVoices/pokeyPairs) + v
			w.Sink.WritePSG(pokeyAUDF[voice], byte(res.freq))
			w.Sink.WritePSG(pokeyAUDC[voice], res.vol)
		}
		w.Sink.WritePSG(sinks.PSGAUDCTL, merged|orBits)
	}
}

// resolveVoice advances the primary and secondary logical channels hinted
// to a physical voice and picks the louder one's (frequency, volume) pair
// for output (spec.md S4.7 steps 1-5). The AUDCTL AND-mask/OR-bits merge is
// tracked separately from that selection: both channels contribute to it
// regardless of which one wins the loudness arbitration ("merge the two
// channels' AUDCTL contributions" is unconditional on step 5).
func (w *POKEYWriter) resolveVoice(voice int) pokeyVoiceResult {
	primaryHint := byte(pokeyHintBase + voice*2)
	secondaryHint := byte(pokeyHintBase + voice*2 + 1)

	andMask := byte(0xFF)
	var orBits byte
	var freq uint16
	var vol byte
	var primaryVol byte
	havePrimary := false

	if ch, ok := w.Allocator.Front(primaryHint); ok {
		w.VM.Advance(ch)
		havePrimary = true
		primaryVol = ch.EffectiveVolume() & 0x0F
		freq = ch.EffectiveFrequency()
		vol = ch.EffectiveVolume()
		andMask &= ch.CtrlAndMask
		orBits |= ch.CtrlOrBits
	}

	if ch, ok := w.Allocator.Front(secondaryHint); ok {
		w.VM.Advance(ch)
		secVol := ch.EffectiveVolume() & 0x0F
		andMask &= ch.CtrlAndMask
		orBits |= ch.CtrlOrBits
		if !havePrimary || (primaryVol <= w.FilterThreshold && secVol > primaryVol) {
			freq = ch.EffectiveFrequency()
			vol = ch.EffectiveVolume()
		}
	}

	return pokeyVoiceResult{freq: freq, vol: vol, andMask: andMask, orBits: orBits}
}
