package engine

import (
	"testing"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
	"github.com/stretchr/testify/require"
)

func TestSpeechQueueDropsLowerPriority(t *testing.T) {
	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}

	require.True(t, q.Enqueue(PlaybackRequest{Priority: 5}))
	require.False(t, q.Enqueue(PlaybackRequest{Priority: 2}))
	require.Equal(t, 1, q.Len())
}

func TestSpeechQueueHigherPriorityFlushesQueued(t *testing.T) {
	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}

	require.True(t, q.Enqueue(PlaybackRequest{Priority: 5, Pointer: 1}))
	require.True(t, q.Enqueue(PlaybackRequest{Priority: 5, Pointer: 2}))
	require.True(t, q.Enqueue(PlaybackRequest{Priority: 9, Pointer: 3}))

	req, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, uint16(3), req.Pointer)

	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestSpeechQueueSamePriorityAppendsFIFO(t *testing.T) {
	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}

	require.True(t, q.Enqueue(PlaybackRequest{Priority: 5, Pointer: 1}))
	require.True(t, q.Enqueue(PlaybackRequest{Priority: 5, Pointer: 2}))

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	require.Equal(t, uint16(1), first.Pointer)
	require.Equal(t, uint16(2), second.Pointer)
}

func TestStreamerZeroLengthRequestAdvancesWithoutUnderflow(t *testing.T) {
	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	r := &rom.ROM{}
	s := &Streamer{ROM: r, Queue: q}

	s.Start(PlaybackRequest{IsSpeech: true, Pointer: 0x3000, Length: 0})
	require.True(t, s.Active())

	trace := sinks.NewTraceSink()
	s.Stream(trace)

	require.False(t, s.Active())
	require.Empty(t, trace.Events())
}

func TestStreamerEmitsBytesThenAdvancesQueue(t *testing.T) {
	b := rom.NewBuilder()
	ptr := b.PutBytes([]byte{0xAA, 0xBB})
	r, err := b.Build()
	require.NoError(t, err)

	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	next := PlaybackRequest{IsSpeech: true, Pointer: ptr + 1, Length: 1}
	require.True(t, q.Enqueue(next))

	s := &Streamer{ROM: r, Queue: q}
	s.Start(PlaybackRequest{IsSpeech: true, Pointer: ptr, Length: 1})

	trace := sinks.NewTraceSink()
	s.Stream(trace) // emits ptr's byte, remaining hits 0, advances to queued request
	require.True(t, s.Active())
	require.Len(t, trace.Events(), 1)
	require.Equal(t, byte(0xAA), trace.Events()[0].Value)

	s.Stream(trace) // emits the queued request's byte
	require.Len(t, trace.Events(), 2)
	require.Equal(t, byte(0xBB), trace.Events()[1].Value)
	require.False(t, s.Active())
}

func TestStreamerIgnoresMusicPlayback(t *testing.T) {
	s := &Streamer{ROM: &rom.ROM{}, Queue: &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}}
	s.Start(PlaybackRequest{IsSpeech: false, Pointer: 0x4000, Length: 10})

	trace := sinks.NewTraceSink()
	s.Stream(trace)

	require.Empty(t, trace.Events())
	require.True(t, s.Active())
}

func TestTickMusicCountsDownThenAdvancesQueue(t *testing.T) {
	q := &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}
	next := PlaybackRequest{IsSpeech: false, Pointer: 0x5000, Length: 1}
	require.True(t, q.Enqueue(next))

	s := &Streamer{ROM: &rom.ROM{}, Queue: q}
	s.Start(PlaybackRequest{IsSpeech: false, Pointer: 0x4000, Length: 3})

	s.TickMusic()
	require.True(t, s.Active())
	s.TickMusic()
	require.True(t, s.Active())
	s.TickMusic() // remaining hits 0: advances to the queued request
	require.True(t, s.Active())

	s.TickMusic() // queued request has Length 1: one more tick finishes it
	require.False(t, s.Active())
}

func TestTickMusicIsNoOpWhileSpeechActive(t *testing.T) {
	s := &Streamer{ROM: &rom.ROM{}, Queue: &SpeechQueue{Errors: &ErrorFlags{}, Logger: NewLogger(nil)}}
	s.Start(PlaybackRequest{IsSpeech: true, Pointer: 0x6000, Length: 5})

	s.TickMusic()

	require.True(t, s.Active())
	require.Equal(t, uint16(5), s.remaining)
}
