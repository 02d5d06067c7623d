package transcriber

import (
	"context"
	"sync"
)

// FakeTranscriber hands out FakeSessions that the test drives by hand.
type FakeTranscriber struct {
	lang    string
	openErr error

	mu       sync.Mutex
	sessions []*FakeSession
}

func NewFake() *FakeTranscriber {
	return &FakeTranscriber{}
}

// FailOpen makes NewSession return err.
func (f *FakeTranscriber) FailOpen(err error) { f.openErr = err }

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &FakeSession{Config: cfg, results: make(chan []Segment, 64)}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Last returns the most recent session, or nil.
func (f *FakeTranscriber) Last() *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *FakeTranscriber) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type FakeSession struct {
	Config SessionConfig

	mu      sync.Mutex
	results chan []Segment
	last    []Segment
	fed     int
	err     error
	closed  bool
}

// Emit publishes a recognition event whose segments have the given texts,
// all final.
func (s *FakeSession) Emit(texts ...string) {
	segs := make([]Segment, len(texts))
	for i, t := range texts {
		segs[i] = Segment{Text: t, Final: true}
	}
	s.EmitSegments(segs)
}

func (s *FakeSession) EmitSegments(segs []Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = segs
	s.results <- segs
}

// Fail ends the session with err, as a dropped connection would.
func (s *FakeSession) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.results)
}

func (s *FakeSession) Fed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fed
}

func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeSession) Feed(pcm []byte) {
	s.mu.Lock()
	s.fed += len(pcm)
	s.mu.Unlock()
}

func (s *FakeSession) Results() <-chan []Segment { return s.results }

func (s *FakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FakeSession) Close() (SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	text := Join(s.last)
	return SessionResult{Text: text, Segments: s.last, NoSpeech: text == ""}, s.err
}
