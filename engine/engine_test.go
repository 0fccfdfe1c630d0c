package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
	"github.com/stretchr/testify/require"
)

func buildPlayableROM(t *testing.T) (*rom.ROM, uint16) {
	t.Helper()
	b := rom.NewBuilder().StandardDurations().StandardFMFreqTable()
	seq := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	b.SetSFX(0x1D, 0xFF, 8, 4, seq, 0, 0)
	b.SetCommand(0x0D, rom.HandlerPSGAllocate, 0x1D, rom.NMIEnqueue)
	r, err := b.Build()
	require.NoError(t, err)
	return r, seq
}

func TestNewRequiresROM(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrROMRequired)
}

func TestPushAndTickAllocatesChannel(t *testing.T) {
	r, _ := buildPlayableROM(t)
	trace := sinks.NewTraceSink()
	e, err := New(Options{ROM: r, Bus: sinks.Bus{PSG: trace, FM: trace, Speech: trace, Mixer: trace}})
	require.NoError(t, err)

	e.Push(0x0D)
	e.Tick()

	found := false
	for i := 0; i < ChannelCount; i++ {
		snap, err := e.ChannelState(i)
		require.NoError(t, err)
		if snap.Live {
			found = true
		}
	}
	require.True(t, found)
}

func TestChannelStateRejectsOutOfRangeIndex(t *testing.T) {
	r, _ := buildPlayableROM(t)
	e, err := New(Options{ROM: r})
	require.NoError(t, err)

	_, err = e.ChannelState(-1)
	require.ErrorIs(t, err, ErrChannelIndex)

	_, err = e.ChannelState(ChannelCount)
	require.ErrorIs(t, err, ErrChannelIndex)
}

func TestPopOutputDrainsEgressQueue(t *testing.T) {
	b := rom.NewBuilder()
	b.SetCommand(0x08, rom.HandlerOutputToHost, 0x7A, rom.NMIEnqueue)
	r, err := b.Build()
	require.NoError(t, err)

	e, err := New(Options{ROM: r})
	require.NoError(t, err)

	e.Push(0x08)
	e.Tick()

	b0, ok := e.PopOutput()
	require.True(t, ok)
	require.Equal(t, byte(0x7A), b0)

	_, ok = e.PopOutput()
	require.False(t, ok)
}

func TestResetClearsErrorsAndChannels(t *testing.T) {
	r, _ := buildPlayableROM(t)
	e, err := New(Options{ROM: r})
	require.NoError(t, err)

	e.Push(0x0D)
	e.Tick()
	e.Reset()

	for i := 0; i < ChannelCount; i++ {
		snap, err := e.ChannelState(i)
		require.NoError(t, err)
		require.False(t, snap.Live)
	}
	require.Equal(t, byte(0), e.ErrorFlags())
}

func TestSpeechQueueLenReflectsEnqueuedRequests(t *testing.T) {
	b := rom.NewBuilder()
	seq := b.PutBytes([]byte{0x01, 0x02, 0x03})
	b.SetSeqEntry(1, seq, 3)
	b.SetSeqEntry(2, seq+1, 2)
	b.SetMusicMeta(0x2A, 0x00, 0, 1)
	b.SetMusicMeta(0x2B, 0x00, 0, 2)
	b.SetCommand(0x2A, rom.HandlerMusicSpeech, 0, rom.NMIEnqueue)
	b.SetCommand(0x2B, rom.HandlerMusicSpeech, 0, rom.NMIEnqueue)
	r, err := b.Build()
	require.NoError(t, err)

	e, err := New(Options{ROM: r})
	require.NoError(t, err)

	e.Push(0x2A)
	e.Tick()
	require.Equal(t, 0, e.SpeechQueueLen())

	e.Push(0x2B)
	e.Tick()
	require.Equal(t, 1, e.SpeechQueueLen())
}
