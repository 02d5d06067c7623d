package transcriber

import (
	"strings"
	"sync"
	"time"

	"talkback/encoder"
	"talkback/log"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
	streamDrainMax     = 2 * time.Second
	// Chunks held back while the sender is not draining, about 30 s of audio.
	// Older audio is dropped past this.
	streamBacklogMax = 30 * 1000 / streamChunkMs
)

type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Control      bool // metadata or other non-transcript message
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

type streamSession struct {
	cfg       SessionConfig
	ws        rawStreamSession
	audioCh   chan []byte
	results   chan []Segment
	startedAt time.Time
	connected chan struct{} // closed when the stream is ready (or failed)

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedBuf    []byte
	backlog    [][]byte
	dropped    int
	feedClosed bool
	feedMu     sync.Mutex

	publishMu     sync.Mutex
	resultsClosed bool

	mu       sync.Mutex
	finals   []string
	interim  string
	listened bool // end of speech seen in non-continuous mode
	err      error
	errOnce  sync.Once
	closing  bool
	stats    streamStats
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s streamStats) audioDuration() float64 {
	return float64(s.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
}

func newStreamSession(cfg SessionConfig, dial func() (rawStreamSession, error)) *streamSession {
	ss := &streamSession{
		cfg:       cfg,
		audioCh:   make(chan []byte, 128),
		results:   make(chan []Segment, 16),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}

	go func() {
		connectStart := time.Now()
		ws, err := dial()
		ss.mu.Lock()
		ss.stats.ConnectDur = time.Since(connectStart)
		ss.mu.Unlock()

		if err != nil {
			ss.setErr(err)
			close(ss.recvDone)
			close(ss.connected)
			go ss.runSender()
			return
		}

		ss.mu.Lock()
		ss.ws = ws
		ss.mu.Unlock()
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

// Feed never blocks. Audio the sender cannot take yet, for example while
// the connection is still dialing, waits in a bounded backlog.
func (s *streamSession) Feed(pcm []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.feedClosed {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		s.backlog = append(s.backlog, chunk)
	}
	s.flushBacklog()
}

// flushBacklog hands queued chunks to the sender until it would block.
// Called with feedMu held.
func (s *streamSession) flushBacklog() {
	for len(s.backlog) > 0 {
		select {
		case s.audioCh <- s.backlog[0]:
			s.backlog[0] = nil
			s.backlog = s.backlog[1:]
		default:
			if over := len(s.backlog) - streamBacklogMax; over > 0 {
				if s.dropped == 0 {
					log.Warn("stream sender stalled, dropping audio")
				}
				s.dropped += over
				s.backlog = s.backlog[over:]
			}
			return
		}
	}
}

func (s *streamSession) Results() <-chan []Segment {
	return s.results
}

func (s *streamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *streamSession) Close() (SessionResult, error) {
	s.feedMu.Lock()
	if s.feedClosed {
		s.feedMu.Unlock()
		return SessionResult{NoSpeech: true}, nil
	}
	s.feedClosed = true
	if len(s.feedBuf) > 0 {
		s.backlog = append(s.backlog, s.feedBuf)
		s.feedBuf = nil
	}
	backlog, dropped := s.backlog, s.dropped
	s.backlog = nil
	s.feedMu.Unlock()

	// The sender drains once the dial settles. Sends are time-bounded.
	for _, chunk := range backlog {
		s.audioCh <- chunk
	}
	close(s.audioCh)
	if dropped > 0 {
		log.Warnf("stream dropped %d chunks while the sender was stalled", dropped)
	}

	<-s.connected
	finalizeStart := time.Now()
	<-s.sendDone

	if s.ws != nil {
		// Wait for the server to acknowledge Finalize, then a brief quiet period.
		select {
		case <-s.finalized:
			time.Sleep(streamFinalizeIdle)
		case <-time.After(streamFinalizeMax):
		case <-s.recvDone:
		}

		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.ws.Close()
		select {
		case <-s.recvDone:
		case <-time.After(streamDrainMax):
			log.Warn("stream receiver drain timeout")
		}
	}

	s.mu.Lock()
	if s.interim != "" {
		s.finals = append(s.finals, s.interim)
		s.interim = ""
	}
	segs := s.snapshot()
	stats := s.stats
	stats.FinalizeWait = time.Since(finalizeStart)
	stats.SessionDur = time.Since(s.startedAt)
	sessionErr := s.err
	s.mu.Unlock()

	// The consumer always sees the finished list, even if an earlier
	// publish was coalesced away.
	if len(segs) > 0 {
		s.publish(segs)
	}
	s.closeResults()

	text := strings.TrimSpace(Join(segs))
	return SessionResult{
		Text:     text,
		Segments: segs,
		NoSpeech: text == "",
		Stream: &StreamStats{
			ConnectMs:    float64(stats.ConnectDur.Milliseconds()),
			SentChunks:   stats.SentChunks,
			SentKB:       float64(stats.SentBytes) / 1024,
			RecvMessages: stats.RecvMessages,
			RecvFinal:    stats.RecvFinal,
			RecvInterim:  stats.RecvInterim,
			FinalizeMs:   float64(stats.FinalizeWait.Milliseconds()),
			TotalMs:      float64(stats.SessionDur.Milliseconds()),
			AudioS:       stats.audioDuration(),
		},
	}, sessionErr
}

// runSender keeps draining audioCh after a failure so Feed never blocks.
func (s *streamSession) runSender() {
	defer close(s.sendDone)
	failed := s.Err() != nil
	for chunk := range s.audioCh {
		if failed {
			continue
		}
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			failed = true
			continue
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if !failed {
		if err := s.ws.CloseSend(); err != nil {
			s.setErr(err)
		}
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}
		if update.Control {
			continue
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		if segs, ok := s.apply(update); ok {
			s.publish(segs)
		}
	}
}

// apply folds one server message into the segment list and reports whether
// the list changed.
func (s *streamSession) apply(u streamUpdate) ([]Segment, bool) {
	isFinal := u.IsFinal || u.FromFinalize

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.RecvMessages++
	if isFinal {
		s.stats.RecvFinal++
	} else {
		s.stats.RecvInterim++
	}

	if s.listened {
		return nil, false
	}

	changed := false
	if isFinal {
		if u.Transcript != "" {
			s.finals = append(s.finals, u.Transcript)
			changed = true
		}
		if s.interim != "" {
			s.interim = ""
			changed = true
		}
	} else if s.cfg.Interim && u.Transcript != s.interim {
		s.interim = u.Transcript
		changed = true
	}

	if u.SpeechFinal && !s.cfg.Continuous && len(s.finals) > 0 {
		s.listened = true
	}
	if !changed {
		return nil, false
	}
	return s.snapshot(), true
}

func (s *streamSession) snapshot() []Segment {
	segs := make([]Segment, 0, len(s.finals)+1)
	add := func(text string, final bool) {
		if len(segs) > 0 {
			text = " " + text
		}
		segs = append(segs, Segment{Text: text, Final: final})
	}
	for _, f := range s.finals {
		add(f, true)
	}
	if s.interim != "" {
		add(s.interim, false)
	}
	return segs
}

// publish never blocks: when the consumer lags, the oldest pending list is
// replaced, since each list supersedes the ones before it.
func (s *streamSession) publish(segs []Segment) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if s.resultsClosed {
		return
	}
	for {
		select {
		case s.results <- segs:
			return
		default:
		}
		select {
		case <-s.results:
		default:
		}
	}
}

func (s *streamSession) closeResults() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if !s.resultsClosed {
		s.resultsClosed = true
		close(s.results)
	}
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		ws := s.ws
		s.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		s.closeResults()
	})
}
