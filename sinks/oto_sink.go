//go:build !headless

// oto_sink.go - real-time PCM output via ebitengine/oto, the teacher's own
// audio backend choice (audio_backend_oto.go), gated by the same
// !headless/headless build-tag pair.

package sinks

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// OtoSink is the real-time PCM playback backend for `cmd/soundrom play`.
// It embeds PCMBank for the register-to-sample translation and adds the
// oto.Player plumbing, mirroring the teacher's OtoPlayer.
type OtoSink struct {
	*PCMBank
	ctx     *oto.Context
	player  *oto.Player
	mutex   sync.Mutex
	started bool
}

// NewOtoSink opens an oto playback context at the given sample rate.
func NewOtoSink(sampleRate int) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4096,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	s := &OtoSink{PCMBank: NewPCMBank(sampleRate), ctx: ctx}
	s.player = ctx.NewPlayer(s)
	return s, nil
}

// Read implements io.Reader for oto.Player: samples are rendered on demand
// rather than buffered ahead, matching OtoPlayer.Read's pull-based model.
func (s *OtoSink) Read(p []byte) (int, error) {
	n := len(p) / 4
	if n == 0 {
		return len(p), nil
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = s.Sample()
	}
	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (s *OtoSink) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		s.player.Play()
		s.started = true
	}
}

func (s *OtoSink) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		s.player.Close()
		s.started = false
	}
}

func (s *OtoSink) IsStarted() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}
