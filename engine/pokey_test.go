package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
	"github.com/stretchr/testify/require"
)

// terminatedSequence builds a ROM whose first byte is an end-of-sequence
// marker, so VM.Advance terminates the channel in one step. Termination
// clears Status and sounding and sets VolEnvDone/FreqEnvDone; no other
// field the test sets directly is touched.
func terminatedSequence(t *testing.T) (*rom.ROM, uint16) {
	t.Helper()
	b := rom.NewBuilder()
	ptr := b.PutBytes([]byte{0xBB})
	r, err := b.Build()
	require.NoError(t, err)
	return r, ptr
}

func liveVoiceChannel(seqPtr uint16, freq uint16, vol byte) Channel {
	return Channel{
		Status:      EncodedPriority(1),
		ActiveCmd:   1,
		SeqPtr:      seqPtr,
		BaseFreq:    freq,
		BaseVolume:  vol,
		CtrlAndMask: defaultAUDCTLMask,
	}
}

func eventsFor(events []sinks.Event, reg byte) []sinks.Event {
	var out []sinks.Event
	for _, e := range events {
		if e.Chip == sinks.ChipPSG && e.Register == reg {
			out = append(out, e)
		}
	}
	return out
}

func TestPOKEYWriterKeepsLouderPrimaryRegardlessOfThreshold(t *testing.T) {
	var channels [ChannelCount]Channel
	seqROM, seqPtr := terminatedSequence(t)
	channels[0] = liveVoiceChannel(seqPtr, 100, 0x0F)
	channels[1] = liveVoiceChannel(seqPtr, 200, 0x03)

	alloc := &Allocator{Channels: &channels}
	for i := range alloc.activeHead {
		alloc.activeHead[i] = noLink
	}
	channels[0].HintGroup = pokeyHintBase
	channels[1].HintGroup = pokeyHintBase + 1
	alloc.linkActive(0, pokeyHintBase)
	alloc.linkActive(1, pokeyHintBase+1)

	vm := &VM{ROM: seqROM, Scratch: &[16]byte{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	trace := sinks.NewTraceSink()
	w := &POKEYWriter{VM: vm, Allocator: alloc, Sink: trace, FilterThreshold: 0, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	w.Run()

	freqWrites := eventsFor(trace.Events(), sinks.PSGAUDF1)
	volWrites := eventsFor(trace.Events(), sinks.PSGAUDC1)
	require.Len(t, freqWrites, 1)
	require.Len(t, volWrites, 1)
	require.Equal(t, byte(100), freqWrites[0].Value)
	require.Equal(t, byte(0x0F), volWrites[0].Value)
}

func TestPOKEYWriterSwitchesToSecondaryWhenPrimaryBelowThreshold(t *testing.T) {
	var channels [ChannelCount]Channel
	seqROM, seqPtr := terminatedSequence(t)
	channels[0] = liveVoiceChannel(seqPtr, 100, 0x00) // primary silent, at-or-below threshold
	channels[1] = liveVoiceChannel(seqPtr, 50, 0x05)  // secondary louder

	alloc := &Allocator{Channels: &channels}
	for i := range alloc.activeHead {
		alloc.activeHead[i] = noLink
	}
	channels[0].HintGroup = pokeyHintBase
	channels[1].HintGroup = pokeyHintBase + 1
	alloc.linkActive(0, pokeyHintBase)
	alloc.linkActive(1, pokeyHintBase+1)

	vm := &VM{ROM: seqROM, Scratch: &[16]byte{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	trace := sinks.NewTraceSink()
	w := &POKEYWriter{VM: vm, Allocator: alloc, Sink: trace, FilterThreshold: 0, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	w.Run()

	freqWrites := eventsFor(trace.Events(), sinks.PSGAUDF1)
	volWrites := eventsFor(trace.Events(), sinks.PSGAUDC1)
	require.Len(t, freqWrites, 1)
	require.Len(t, volWrites, 1)
	require.Equal(t, byte(50), freqWrites[0].Value)
	require.Equal(t, byte(0x05), volWrites[0].Value)
}

func TestPOKEYWriterMergesLoserCtrlBitsWhenPrimaryWins(t *testing.T) {
	var channels [ChannelCount]Channel
	seqROM, seqPtr := terminatedSequence(t)
	channels[0] = liveVoiceChannel(seqPtr, 100, 0x0F)
	channels[0].CtrlAndMask = 0xF0
	channels[0].CtrlOrBits = 0x01
	channels[1] = liveVoiceChannel(seqPtr, 50, 0x01)
	channels[1].CtrlAndMask = 0x0F
	channels[1].CtrlOrBits = 0x02

	alloc := &Allocator{Channels: &channels}
	for i := range alloc.activeHead {
		alloc.activeHead[i] = noLink
	}
	channels[0].HintGroup = pokeyHintBase
	channels[1].HintGroup = pokeyHintBase + 1
	alloc.linkActive(0, pokeyHintBase)
	alloc.linkActive(1, pokeyHintBase+1)

	vm := &VM{ROM: seqROM, Scratch: &[16]byte{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	trace := sinks.NewTraceSink()
	w := &POKEYWriter{VM: vm, Allocator: alloc, Sink: trace, FilterThreshold: 0, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	w.Run()

	ctlWrites := eventsFor(trace.Events(), sinks.PSGAUDCTL)
	require.NotEmpty(t, ctlWrites)
	// pair 0's merge: primary's (0xF0, 0x01) AND/OR'd with the losing
	// secondary's (0x0F, 0x02) -> andMask 0x00, orBits 0x03.
	require.Equal(t, byte(0x00|0x03), ctlWrites[0].Value)
}

func TestPOKEYWriterMergesLoserCtrlBitsWhenSecondaryWins(t *testing.T) {
	var channels [ChannelCount]Channel
	seqROM, seqPtr := terminatedSequence(t)
	channels[0] = liveVoiceChannel(seqPtr, 100, 0x00) // primary silent, at-or-below threshold
	channels[0].CtrlAndMask = 0xF0
	channels[0].CtrlOrBits = 0x01
	channels[1] = liveVoiceChannel(seqPtr, 50, 0x05) // secondary louder, wins selection
	channels[1].CtrlAndMask = 0x0F
	channels[1].CtrlOrBits = 0x02

	alloc := &Allocator{Channels: &channels}
	for i := range alloc.activeHead {
		alloc.activeHead[i] = noLink
	}
	channels[0].HintGroup = pokeyHintBase
	channels[1].HintGroup = pokeyHintBase + 1
	alloc.linkActive(0, pokeyHintBase)
	alloc.linkActive(1, pokeyHintBase+1)

	vm := &VM{ROM: seqROM, Scratch: &[16]byte{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	trace := sinks.NewTraceSink()
	w := &POKEYWriter{VM: vm, Allocator: alloc, Sink: trace, FilterThreshold: 0, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	w.Run()

	freqWrites := eventsFor(trace.Events(), sinks.PSGAUDF1)
	require.Len(t, freqWrites, 1)
	require.Equal(t, byte(50), freqWrites[0].Value, "secondary's frequency should still win the loudness arbitration")

	ctlWrites := eventsFor(trace.Events(), sinks.PSGAUDCTL)
	require.NotEmpty(t, ctlWrites)
	// Even though the secondary wins the (freq, vol) selection, both
	// channels' AUDCTL contributions must still be merged (spec.md S4.7
	// step 5 is unconditional on which channel wins loudness arbitration).
	require.Equal(t, byte(0x00|0x03), ctlWrites[0].Value)
}
