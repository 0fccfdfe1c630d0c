//go:build headless

package sinks

// OtoSink in headless builds is a pure sink with no audio device, matching
// the teacher's audio_backend_headless.go (same method surface as the
// !headless build, no-op playback controls) for CI and tests.
type OtoSink struct {
	*PCMBank
	started bool
}

func NewOtoSink(sampleRate int) (*OtoSink, error) {
	return &OtoSink{PCMBank: NewPCMBank(sampleRate)}, nil
}

func (s *OtoSink) Read(p []byte) (int, error) { return len(p), nil }
func (s *OtoSink) Start()                     { s.started = true }
func (s *OtoSink) Stop()                      { s.started = false }
func (s *OtoSink) IsStarted() bool            { return s.started }
