package transcriber

type SessionConfig struct {
	Language string
	// Interim adds the in-progress hypothesis as a trailing segment.
	Interim bool
	// Continuous keeps listening across utterances. Otherwise results stop
	// after the first end of speech.
	Continuous bool
}

// Segment is one recognized span. Every segment after the first carries its
// leading space, so concatenating Text in order yields the transcript.
type Segment struct {
	Text  string
	Final bool
}

func Join(segs []Segment) string {
	n := 0
	for _, s := range segs {
		n += len(s.Text)
	}
	b := make([]byte, 0, n)
	for _, s := range segs {
		b = append(b, s.Text...)
	}
	return string(b)
}

type StreamStats struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
}

type SessionResult struct {
	Text     string
	Segments []Segment
	NoSpeech bool
	Stream   *StreamStats
}

// Session is one recognition stream. Results delivers the complete ordered
// segment list on every change and is closed when the session ends, either
// through Close or because the stream failed (see Err).
type Session interface {
	Feed(pcm []byte)
	Results() <-chan []Segment
	Err() error
	Close() (SessionResult, error)
}
