package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/stretchr/testify/require"
)

func TestAllocateSFXFindsFreeChannelDescending(t *testing.T) {
	b := rom.NewBuilder()
	seq := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	b.SetSFX(0x10, 0xFF, 8, 4, seq, 0, 0)
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	a.AllocateSFX(r, 0x10, 1)

	require.Equal(t, uint16(1), channels[ChannelCount-1].ActiveCmd)
	require.Equal(t, EncodedPriority(8), channels[ChannelCount-1].Status)
	require.Equal(t, seq, channels[ChannelCount-1].SeqPtr)
}

func TestAllocateSFXDuplicateCommandIsNoOp(t *testing.T) {
	b := rom.NewBuilder()
	seq := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	b.SetSFX(0x10, 0x00, 8, 4, seq, 0, 0) // Flags != 0xFF enables dup check
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	a.AllocateSFX(r, 0x10, 7)
	a.AllocateSFX(r, 0x10, 7)

	live := 0
	for i := range channels {
		if channels[i].Live() {
			live++
		}
	}
	require.Equal(t, 1, live)
}

func TestAllocateSFXChainExpandsMultipleChannels(t *testing.T) {
	b := rom.NewBuilder()
	seqA := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	seqB := b.PutBytes([]byte{0x41, 0x01, 0xBB})
	seqC := b.PutBytes([]byte{0x42, 0x01, 0xBB})
	b.SetSFX(0x01, 0xFF, 8, 4, seqA, 0, 0x02)
	b.SetSFX(0x02, 0xFF, 8, 5, seqB, 0, 0x03)
	b.SetSFX(0x03, 0xFF, 8, 6, seqC, 0, 0)
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	a.AllocateSFX(r, 0x01, 0x10)

	live := 0
	for i := range channels {
		if channels[i].Live() {
			live++
		}
	}
	require.Equal(t, 3, live)
}

func TestPreemptReplacesLowerPriorityChannel(t *testing.T) {
	b := rom.NewBuilder()
	seqLow := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	seqHigh := b.PutBytes([]byte{0x41, 0x01, 0xBB})
	b.SetSFX(0x01, 0xFF, 2, 4, seqLow, 0, 0)
	b.SetSFX(0x02, 0xFF, 10, 4, seqHigh, 0, 0)
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	for i := range channels {
		channels[i].Status = EncodedPriority(2)
		channels[i].ActiveCmd = uint16(100 + i)
		channels[i].HintGroup = 4
		a.linkActive(i, 4)
	}

	a.AllocateSFX(r, 0x02, 0x20)

	front, ok := a.Front(4)
	require.True(t, ok)
	require.Equal(t, uint16(0x20), front.ActiveCmd)
}

func TestAllocateSFXNoSlotsAndLowPriorityIsDropped(t *testing.T) {
	b := rom.NewBuilder()
	seq := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	b.SetSFX(0x01, 0xFF, 1, 4, seq, 0, 0)
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	for i := range channels {
		channels[i].Status = EncodedPriority(15)
		channels[i].ActiveCmd = uint16(100 + i)
		channels[i].HintGroup = 4
		a.linkActive(i, 4)
	}

	a.AllocateSFX(r, 0x01, 0x99)

	for i := range channels {
		require.NotEqual(t, uint16(0x99), channels[i].ActiveCmd)
	}
}

func TestReleaseUnlinksFromActiveList(t *testing.T) {
	b := rom.NewBuilder()
	seq := b.PutBytes([]byte{0x40, 0x01, 0xBB})
	b.SetSFX(0x01, 0xFF, 8, 4, seq, 0, 0)
	r, err := b.Build()
	require.NoError(t, err)

	var channels [ChannelCount]Channel
	a := NewAllocator(&channels)
	a.AllocateSFX(r, 0x01, 1)

	idx := ChannelCount - 1
	require.Equal(t, uint16(1), channels[idx].ActiveCmd)

	a.Release(idx)
	_, ok := a.Front(4)
	require.False(t, ok)
}
