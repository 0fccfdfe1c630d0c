package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/stretchr/testify/require"
)

func TestStepVolumeAccumulatesThenDone(t *testing.T) {
	b := rom.NewBuilder()
	volPtr := b.PutBytes([]byte{0x10, 0xFF})
	for i := 0; i < 256; i++ {
		b.SetVolShape(0, byte(i), byte(i))
	}
	r, err := b.Build()
	require.NoError(t, err)

	p := &Pipeline{ROM: r, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	ch := &Channel{Status: EncodedPriority(1), ActiveCmd: 1, VolEnvPtr: volPtr, VolLoopCount: 0}

	p.stepVolume(ch)
	require.False(t, ch.VolEnvDone)
	require.Equal(t, byte(0x10>>4), ch.BaseVolume)

	p.stepVolume(ch) // hits 0xFF with VolLoopCount == 0: done
	require.True(t, ch.VolEnvDone)
}

func TestStepFadeCountsDownAndFinishes(t *testing.T) {
	p := &Pipeline{ROM: &rom.ROM{}, Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	ch := &Channel{
		Status:     EncodedPriority(1),
		ActiveCmd:  5 | CmdSpecialMarker,
		BaseVolume: 3,
	}

	p.stepVolume(ch)
	require.Equal(t, byte(2), ch.BaseVolume)
	require.True(t, ch.Live())

	p.stepVolume(ch)
	require.Equal(t, byte(1), ch.BaseVolume)

	p.stepVolume(ch)
	require.Equal(t, byte(0), ch.BaseVolume)
	require.True(t, ch.VolEnvDone)
	require.Equal(t, CmdFinished, ch.ActiveCmd)
	require.False(t, ch.Live())
}

func TestEffectiveVolumeAppliesDistMask(t *testing.T) {
	ch := &Channel{BaseVolume: 0x0A, DistMask: 0xF3}
	require.Equal(t, byte(0xFA), ch.EffectiveVolume())
}

func TestEffectiveFrequencyClampsAndCombines(t *testing.T) {
	ch := &Channel{BaseFreq: 100, FreqAccum: 256 * 10, Portamento: -5}
	require.Equal(t, uint16(105), ch.EffectiveFrequency())

	ch2 := &Channel{BaseFreq: 0, Portamento: -1000}
	require.Equal(t, uint16(0), ch2.EffectiveFrequency())
}
