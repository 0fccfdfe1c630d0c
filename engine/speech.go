package engine

import (
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
)

// speechQueueCapacity is the speech priority queue's fixed size (spec.md
// S4.9 "8-entry circular buffer").
const speechQueueCapacity = 8

// PlaybackRequest is one queued music/speech playback request (spec.md
// S3.4, S4.9). The same struct hosts both music and speech: the streamer's
// byte sink differs, but the sequence pointer/length/priority fields are
// shared (spec.md S4.9 "The same playback machinery hosts both music and
// speech").
type PlaybackRequest struct {
	Pointer  uint16
	Length   uint16
	Priority byte
	IsSpeech bool
}

// SpeechQueue is the 8-entry circular priority-preempting queue of spec.md
// S4.9: a push lower than the current priority is dropped, an equal
// priority push appends without flushing, and a higher priority push
// flushes every not-yet-playing entry before appending.
//
// Grounded on coprocessor_manager.go's ticket/completion queue (priority
// field, flush-on-preempt) adapted to a single-priority-class ring.
type SpeechQueue struct {
	entries    [speechQueueCapacity]PlaybackRequest
	head, tail int
	count      int

	hasCurrent      bool
	currentPriority byte

	Errors *ErrorFlags
	Logger *Logger
}

// Enqueue pushes a new playback request under the priority rules above. It
// reports whether the request was accepted (false if it was dropped as
// lower-priority, or the ring was still full after a same/higher-priority
// flush).
func (q *SpeechQueue) Enqueue(req PlaybackRequest) bool {
	if q.hasCurrent {
		if req.Priority < q.currentPriority {
			return false
		}
		if req.Priority > q.currentPriority {
			q.head = q.tail // flush: queued (not current) entries are discarded
			q.count = 0
			q.currentPriority = req.Priority
		}
	} else {
		q.currentPriority = req.Priority
	}

	if q.count == speechQueueCapacity {
		q.Errors.set(ErrFlagGeneral, q.Logger, "engine: speech queue full, request dropped")
		return false
	}
	q.entries[q.head] = req
	q.head = (q.head + 1) % speechQueueCapacity
	q.count++
	q.hasCurrent = true
	return true
}

// Dequeue pops the next queued request in FIFO order within the current
// priority class.
func (q *SpeechQueue) Dequeue() (PlaybackRequest, bool) {
	if q.count == 0 {
		q.hasCurrent = false
		return PlaybackRequest{}, false
	}
	req := q.entries[q.tail]
	q.tail = (q.tail + 1) % speechQueueCapacity
	q.count--
	if q.count == 0 {
		q.hasCurrent = false
	}
	return req, true
}

// Len reports the queue's current occupancy.
func (q *SpeechQueue) Len() int { return q.count }

// Streamer hosts the shared music/speech playback pointer (spec.md S4.9).
// Speech runs 4x per tick (~960 Hz) via Stream, gated by the TMS5220's
// ready line; music has no per-byte host sink to gate against, so its
// remaining-length counter instead advances once per engine tick via
// TickMusic, driven directly by Engine.Tick.
//
// Grounded on the teacher's PlayerControlState (music_common.go: staged
// pointer/length, PlayBusy flag) adapted to a byte-at-a-time push.
type Streamer struct {
	ROM   *rom.ROM
	Queue *SpeechQueue

	active    bool
	isSpeech  bool
	ptr       uint16
	remaining uint16
}

// Active reports whether music or speech is currently playing -- the Type
// 11 handler (spec.md S4.3) consults this to decide whether to start
// immediately or enqueue.
func (s *Streamer) Active() bool { return s.active }

// Start begins playback of a request immediately, bypassing the queue
// (used when nothing is currently playing).
func (s *Streamer) Start(req PlaybackRequest) {
	s.active = true
	s.isSpeech = req.IsSpeech
	s.ptr = req.Pointer
	s.remaining = req.Length
}

// Stream runs one streamer tick (spec.md S4.9, invoked 4x per engine tick):
// if speech is active and the sink reports ready, emit one byte and
// advance; when the remaining-length counter reaches 0, the stream ends
// and the next queued request (if any) starts.
func (s *Streamer) Stream(sink sinks.SpeechWriter) {
	if !s.active || !s.isSpeech {
		// Music's remaining-length counter advances separately, once per
		// tick, via TickMusic -- it has no per-byte host sink to gate this
		// 4x/tick call against.
		return
	}
	if s.remaining == 0 {
		s.advanceQueue()
		return
	}
	if sink == nil || !sink.SpeechReady() {
		return
	}
	sink.WriteSpeech(s.ROM.Byte(s.ptr))
	s.ptr++
	s.remaining--
	if s.remaining == 0 {
		s.advanceQueue()
	}
}

// TickMusic advances a playing music request's remaining-length counter by
// one engine tick, ending the stream and starting the next queued request
// once it reaches 0, the same queue-advance logic Stream runs for speech.
// It is a no-op while speech (rather than music) is the active stream.
func (s *Streamer) TickMusic() {
	if !s.active || s.isSpeech {
		return
	}
	if s.remaining == 0 {
		s.advanceQueue()
		return
	}
	s.remaining--
	if s.remaining == 0 {
		s.advanceQueue()
	}
}

func (s *Streamer) advanceQueue() {
	s.active = false
	if s.Queue == nil {
		return
	}
	if next, ok := s.Queue.Dequeue(); ok {
		s.Start(next)
	}
}
