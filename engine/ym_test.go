package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
	"github.com/stretchr/testify/require"
)

func newTestYMWriter(t *testing.T, channels *[ChannelCount]Channel) (*YMWriter, *sinks.TraceSink) {
	t.Helper()
	seqROM, seqPtr := terminatedSequence(t)
	for i := range channels {
		channels[i].SeqPtr = seqPtr
	}
	alloc := &Allocator{Channels: channels}
	for i := range alloc.activeHead {
		alloc.activeHead[i] = noLink
	}
	vm := &VM{ROM: seqROM, Scratch: &[16]byte{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	trace := sinks.NewTraceSink()
	w := &YMWriter{VM: vm, Allocator: alloc, Sink: trace, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	return w, trace
}

func eventsForFM(events []sinks.Event, reg byte) []sinks.Event {
	var out []sinks.Event
	for _, e := range events {
		if e.Chip == sinks.ChipFM && e.Register == reg {
			out = append(out, e)
		}
	}
	return out
}

func TestYMWriterCommitsShadowRegistersOnly(t *testing.T) {
	var channels [ChannelCount]Channel
	channels[0] = liveVoiceChannel(0, 0, 0)
	channels[0].FMShadow[0x20] = 0x11
	channels[0].FMShadow[0x30] = 0x22
	channels[0].FMShadow[0x38] = 0x33
	channels[0].HintGroup = ymHintBase

	w, trace := newTestYMWriter(t, &channels)
	w.Allocator.linkActive(0, ymHintBase)
	w.Run()

	require.Len(t, eventsForFM(trace.Events(), 0x20), 1)
	require.Equal(t, byte(0x11), eventsForFM(trace.Events(), 0x20)[0].Value)
	require.Len(t, eventsForFM(trace.Events(), 0x30), 1)
	require.Equal(t, byte(0x22), eventsForFM(trace.Events(), 0x30)[0].Value)
	require.Len(t, eventsForFM(trace.Events(), 0x38), 1)
	require.Equal(t, byte(0x33), eventsForFM(trace.Events(), 0x38)[0].Value)
	require.Empty(t, eventsForFM(trace.Events(), 0x08))
	require.Empty(t, eventsForFM(trace.Events(), 0x28))
}

func TestYMWriterKeyOnClearsUpdateFlag(t *testing.T) {
	var channels [ChannelCount]Channel
	channels[0] = liveVoiceChannel(0, 0, 0)
	channels[0].updateFlag = true
	channels[0].HintGroup = ymHintBase

	w, trace := newTestYMWriter(t, &channels)
	w.Allocator.linkActive(0, ymHintBase)
	w.Run()

	keyOnWrites := eventsForFM(trace.Events(), 0x08)
	require.Len(t, keyOnWrites, 1)
	require.Equal(t, byte(0), keyOnWrites[0].Value)
	require.False(t, channels[0].updateFlag)
}

func TestYMWriterSoundingAppliesAlgorithmDetune(t *testing.T) {
	var channels [ChannelCount]Channel
	channels[0] = liveVoiceChannel(0, 0, 0)
	channels[0].sounding = true
	channels[0].FMShadow[0x20] = 0x03 // algorithm/feedback byte, low 3 bits = 3
	channels[0].FMShadow[0x28] = 0xF0
	channels[0].HintGroup = ymHintBase

	w, trace := newTestYMWriter(t, &channels)
	// A note frame keeps the channel sounding through VM.Advance; the
	// terminating sequence newTestYMWriter installs would clear it.
	b := rom.NewBuilder()
	notePtr := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	noteROM, err := b.Build()
	require.NoError(t, err)
	w.VM.ROM = noteROM
	channels[0].SeqPtr = notePtr
	w.Allocator.linkActive(0, ymHintBase)
	w.Run()

	detuneWrites := eventsForFM(trace.Events(), 0x28)
	require.Len(t, detuneWrites, 1)
	require.Equal(t, byte(0xF0^algorithmDetune(0x03)), detuneWrites[0].Value)
}

func TestYMWriterSkipsSilentChannelsAndProcessesDescending(t *testing.T) {
	var channels [ChannelCount]Channel
	channels[0] = liveVoiceChannel(0, 0, 0)
	channels[0].FMShadow[0x20] = 0xAA
	channels[0].HintGroup = ymHintBase

	channels[1] = liveVoiceChannel(0, 0, 0)
	channels[1].FMShadow[0x20] = 0xBB
	channels[1].HintGroup = ymHintBase + 7

	w, trace := newTestYMWriter(t, &channels)
	w.Allocator.linkActive(0, ymHintBase)
	w.Allocator.linkActive(1, ymHintBase+7)
	w.Run()

	writes := eventsForFM(trace.Events(), 0x20)
	require.Len(t, writes, 2)
	// channel 7 (hint ymHintBase+7) is processed before channel 0, since Run
	// walks hints in descending order.
	require.Equal(t, byte(0xBB), writes[0].Value)
	require.Equal(t, byte(0xAA), writes[1].Value)
}

func TestYMWriterBusyPollTimeoutSetsErrorFlag(t *testing.T) {
	var channels [ChannelCount]Channel
	channels[0] = liveVoiceChannel(0, 0, 0)
	channels[0].HintGroup = ymHintBase

	w, trace := newTestYMWriter(t, &channels)
	w.Allocator.linkActive(0, ymHintBase)
	trace.SetFMBusy(true)
	w.Run()

	require.True(t, w.Errors.Has(ErrFlagFMBusyTimeout))
}

func TestAlgorithmDetuneMasksLowThreeBitsIntoHighNibble(t *testing.T) {
	require.Equal(t, byte(0x70), algorithmDetune(0xFF)) // low 3 bits of 0xFF are 0x07
	require.Equal(t, byte(0x30), algorithmDetune(0x03))
	require.Equal(t, byte(0x00), algorithmDetune(0x00))
}
