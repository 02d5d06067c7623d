package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"talkback/audio"
	"talkback/log"
	"talkback/store"
	"talkback/transcriber"
)

const eventQueueSize = 256

// Config wires the controller to its capabilities. A nil field disables
// what it provides.
type Config struct {
	// Capture is nil when the host has no usable microphone.
	Capture audio.CaptureDevice
	// Recognizer is nil when no provider is configured; sessions then
	// record audio only.
	Recognizer transcriber.Transcriber
	Store      Persister
	Artifacts  Artifacts
	Sink       EventSink
	// Restored seeds the transcript and audio reference shown before the
	// first session.
	Restored *store.Record
	Language string
}

// Controller owns the session state. Every mutation happens on its run
// goroutine; public methods and capability callbacks only enqueue events.
type Controller struct {
	cfg    Config
	sink   EventSink
	ctx    context.Context
	cancel context.CancelFunc

	events    chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	snapMu sync.Mutex
	snap   Snapshot
	since  time.Time

	// Owned by run.
	state       State
	gen         uint64
	transcript  string
	audioRef    string
	chunks      [][]byte
	nchunks     int // kept after finalize
	bytes       int
	startedAt   time.Time
	elapsed     time.Duration
	rec         transcriber.Session
	recDone     chan struct{}
	recReported bool
}

type startReq struct{ reply chan error }

type stopReq struct{ reply chan error }

type chunkEvent struct {
	gen  uint64
	data []byte
}

type resultEvent struct {
	gen  uint64
	segs []transcriber.Segment
}

type recognitionEnded struct {
	gen uint64
	err error
}

type captureStopped struct{ gen uint64 }

type stopCompleted struct {
	gen uint64
	err error
}

// New starts the controller goroutine. Release it with Close.
func New(cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		sink:   cfg.Sink,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan any, eventQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if c.sink == nil {
		c.sink = nopSink{}
	}
	if cfg.Restored != nil {
		c.transcript = cfg.Restored.Transcript
		c.audioRef = cfg.Restored.AudioURL
	}
	c.publish()
	go c.run()
	return c
}

// Start begins a session. It fails with ErrNotIdle unless the controller
// is idle and with ErrPermissionDenied if the microphone cannot start; in
// both cases nothing changes.
func (c *Controller) Start(ctx context.Context) error {
	return c.request(ctx, func(reply chan error) any { return startReq{reply} })
}

// Stop ends the current session. Finalization completes asynchronously;
// watch for EventSink.Finalized or an Idle snapshot.
func (c *Controller) Stop(ctx context.Context) error {
	return c.request(ctx, func(reply chan error) any { return stopReq{reply} })
}

func (c *Controller) request(ctx context.Context, mk func(chan error) any) error {
	reply := make(chan error, 1)
	if !c.post(mk(reply)) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	s := c.snap
	if s.State == Recording {
		s.Elapsed = time.Since(c.since)
	}
	return s
}

// Close stops any active session without finalizing it.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
		c.cancel()
	})
}

func (c *Controller) post(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case startReq:
		ev.reply <- c.start()
	case stopReq:
		ev.reply <- c.stop()
	case chunkEvent:
		if ev.gen == c.gen && c.state != Idle {
			c.addChunk(ev.data)
		}
	case resultEvent:
		if ev.gen == c.gen && c.state != Idle {
			c.transcript = transcriber.Join(ev.segs)
			c.publish()
			c.sink.Transcript(c.transcript)
		}
	case recognitionEnded:
		if ev.gen == c.gen && c.state != Idle && ev.err != nil {
			c.recognitionFailed(ev.err)
		}
	case captureStopped:
		if ev.gen == c.gen && c.state == Stopping {
			c.closeRecognizer()
		}
	case stopCompleted:
		if ev.gen == c.gen && c.state == Stopping {
			if ev.err != nil {
				c.recognitionFailed(ev.err)
			}
			chunks := c.chunks
			c.chunks = nil
			c.finalize(chunks)
		}
	}
}

func (c *Controller) start() error {
	if c.state != Idle {
		return ErrNotIdle
	}
	capture := c.cfg.Capture
	if capture == nil {
		return ErrCapabilityUnavailable
	}

	c.gen++
	gen := c.gen
	capture.SetCallback(func(data []byte, _ uint32) {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		c.post(chunkEvent{gen: gen, data: chunk})
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		log.Errorf("capture start: %v", err)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Clear(); err != nil {
			c.report(err)
		}
	}
	if c.audioRef != "" && c.cfg.Artifacts != nil {
		if err := c.cfg.Artifacts.Discard(c.audioRef); err != nil {
			log.Warnf("discard previous recording: %v", err)
		}
	}
	c.transcript = ""
	c.audioRef = ""
	c.chunks = nil
	c.nchunks = 0
	c.bytes = 0
	c.elapsed = 0
	c.startedAt = time.Now()
	c.recReported = false
	c.openRecognizer(gen)

	provider := "none"
	if c.cfg.Recognizer != nil {
		provider = c.cfg.Recognizer.Name()
	}
	log.SessionStart(provider, capture.DeviceName())

	c.setState(Recording)
	return nil
}

func (c *Controller) openRecognizer(gen uint64) {
	c.rec, c.recDone = nil, nil
	if c.cfg.Recognizer == nil {
		c.recReported = true
		c.report(fmt.Errorf("%w: no provider configured, recording audio only", ErrRecognitionUnavailable))
		return
	}
	sess, err := c.cfg.Recognizer.NewSession(c.ctx, transcriber.SessionConfig{
		Language:   c.cfg.Language,
		Interim:    true,
		Continuous: true,
	})
	if err != nil {
		c.recognitionFailed(err)
		return
	}

	done := make(chan struct{})
	c.rec, c.recDone = sess, done
	go func() {
		defer close(done)
		for segs := range sess.Results() {
			if !c.post(resultEvent{gen: gen, segs: segs}) {
				return
			}
		}
		c.post(recognitionEnded{gen: gen, err: sess.Err()})
	}()
}

func (c *Controller) addChunk(data []byte) {
	c.chunks = append(c.chunks, data)
	c.nchunks++
	c.bytes += len(data)
	if c.rec != nil {
		c.rec.Feed(data)
	}
	c.publish()
	c.sink.AudioLevel(audio.RMS(data))
}

func (c *Controller) stop() error {
	if c.state != Recording {
		return ErrNotRecording
	}
	c.elapsed = time.Since(c.startedAt)
	c.setState(Stopping)

	gen, capture := c.gen, c.cfg.Capture
	go func() {
		capture.Stop()
		capture.ClearCallback()
		c.post(captureStopped{gen: gen})
	}()
	return nil
}

// closeRecognizer runs once every chunk of the session has been fed.
func (c *Controller) closeRecognizer() {
	gen, rec, recDone := c.gen, c.rec, c.recDone
	go func() {
		var err error
		if rec != nil {
			var res transcriber.SessionResult
			res, err = rec.Close()
			if res.Stream != nil {
				log.StreamMetrics(log.StreamMetricsData{
					ConnectMs:    res.Stream.ConnectMs,
					FinalizeMs:   res.Stream.FinalizeMs,
					TotalMs:      res.Stream.TotalMs,
					AudioS:       res.Stream.AudioS,
					SentChunks:   res.Stream.SentChunks,
					SentKB:       res.Stream.SentKB,
					RecvMessages: res.Stream.RecvMessages,
					RecvFinal:    res.Stream.RecvFinal,
					RecvInterim:  res.Stream.RecvInterim,
				})
			}
			<-recDone
		}
		c.post(stopCompleted{gen: gen, err: err})
	}()
}

func (c *Controller) finalize(chunks [][]byte) {
	ref := ""
	if c.cfg.Artifacts != nil {
		var err error
		ref, err = c.cfg.Artifacts.Write(chunks)
		if err != nil {
			c.report(fmt.Errorf("assemble recording: %w", err))
			ref = ""
		}
	}
	c.audioRef = ref

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Persist(store.Record{Transcript: c.transcript, AudioURL: ref}); err != nil {
			c.report(err)
		}
	}

	log.SessionEnd(len(chunks), c.bytes, ref)
	log.TranscriptText(c.transcript)

	c.rec, c.recDone = nil, nil
	c.setState(Idle)
	c.sink.Finalized(c.Snapshot())
}

func (c *Controller) recognitionFailed(err error) {
	if c.recReported {
		log.Warnf("recognition: %v", err)
		return
	}
	c.recReported = true
	if !errors.Is(err, ErrRecognitionUnavailable) {
		err = fmt.Errorf("%w: %v", ErrRecognitionUnavailable, err)
	}
	c.report(err)
}

func (c *Controller) report(err error) {
	log.Errorf("session: %v", err)
	c.sink.Error(err)
}

func (c *Controller) setState(s State) {
	c.state = s
	c.publish()
	c.sink.StateChanged(c.Snapshot())
}

func (c *Controller) publish() {
	c.snapMu.Lock()
	c.snap = Snapshot{
		State:      c.state,
		Transcript: c.transcript,
		AudioRef:   c.audioRef,
		Chunks:     c.nchunks,
		Bytes:      c.bytes,
		Elapsed:    c.elapsed,
	}
	c.since = c.startedAt
	c.snapMu.Unlock()
}

// shutdown abandons an active session: capture stops and the recognizer
// is closed, but nothing is persisted.
func (c *Controller) shutdown() {
	if c.state == Idle {
		return
	}
	if c.state == Recording {
		c.cfg.Capture.Stop()
		c.cfg.Capture.ClearCallback()
	}
	if c.rec != nil {
		c.rec.Close()
	}
}
