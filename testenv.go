package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"talkback/audio"
	"talkback/config"
	"talkback/encoder"
	"talkback/log"
	"talkback/playback"
	"talkback/session"
	"talkback/transcriber"
)

const testWaitTimeout = 30 * time.Second

// textSink prints controller events one per line for the headless driver.
type textSink struct {
	mu        sync.Mutex
	w         io.Writer
	finalized chan session.Snapshot
}

func newTextSink(w io.Writer) *textSink {
	return &textSink{w: w, finalized: make(chan session.Snapshot, 8)}
}

func (s *textSink) printf(format string, args ...any) {
	s.mu.Lock()
	fmt.Fprintf(s.w, format+"\n", args...)
	s.mu.Unlock()
}

func (s *textSink) StateChanged(snap session.Snapshot) { s.printf("state %s", snap.State) }
func (s *textSink) Transcript(text string)             { s.printf("transcript %s", text) }
func (s *textSink) AudioLevel(float64)                 {}
func (s *textSink) Error(err error)                    { s.printf("error %v", err) }

func (s *textSink) Finalized(snap session.Snapshot) {
	s.printf("saved transcript=%q audio=%s chunks=%d", snap.Transcript, snap.AudioRef, snap.Chunks)
	select {
	case s.finalized <- snap:
	default:
	}
}

// testDriver runs the stdin script against a fully composed app whose
// microphone replays a WAV file.
type testDriver struct {
	app   *app
	sink  *textSink
	audio *audio.FakeContext
	fake  *transcriber.FakeTranscriber // nil when a real provider is used
	ended chan playback.Status
}

func runTestMode(cfg *config.Config, wavPath string, fakeRecognizer bool, in io.Reader, out io.Writer) error {
	fc, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		return fmt.Errorf("load wav: %w", err)
	}

	d := &testDriver{sink: newTextSink(out), audio: fc, ended: make(chan playback.Status, 1)}
	caps := capabilities{
		audio:      func() (audio.Context, error) { return fc, nil },
		recognizer: hostCapabilities.recognizer,
	}
	if fakeRecognizer {
		d.fake = transcriber.NewFake()
		caps.recognizer = func() (transcriber.Transcriber, error) { return d.fake, nil }
	}

	d.app, err = newApp(cfg, caps, d.sink)
	if err != nil {
		return err
	}
	defer d.app.Close()
	d.app.cues.Disable()
	for _, n := range d.app.notices {
		d.sink.printf("error %v", n)
	}
	d.app.playback.OnChange(func(st playback.Status) {
		if st.Loaded() && !st.Playing && st.Current >= st.Duration {
			select {
			case d.ended <- st:
			default:
			}
		}
	})

	snap := d.app.session.Snapshot()
	d.sink.printf("ready transcript=%q audio=%s", snap.Transcript, snap.AudioRef)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := d.exec(strings.TrimSpace(scanner.Text()))
		if err != nil {
			d.sink.printf("error %v", err)
		}
		if quit {
			break
		}
	}
	snap = d.app.session.Snapshot()
	log.SessionEnd(snap.Chunks, snap.Bytes, snap.AudioRef)
	return scanner.Err()
}

func (d *testDriver) exec(line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	ctx := context.Background()
	switch cmd {
	case "":
	case "START":
		return false, d.app.session.Start(ctx)
	case "STOP":
		return false, d.app.session.Stop(ctx)
	case "WAIT":
		select {
		case <-d.sink.finalized:
		case <-time.After(testWaitTimeout):
			return false, errors.New("timed out waiting for the session to finish")
		}
	case "WAIT_AUDIO_DONE":
		if fcap, ok := d.app.capture.(*audio.FakeCapture); ok {
			<-fcap.AudioDone()
		}
	case "SAY":
		return false, d.say(arg)
	case "PLAY":
		return false, d.play()
	case "SLEEP":
		ms, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("SLEEP %q: %w", arg, err)
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
	case "QUIT":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

// say emits one recognition event on the fake provider. Segments are
// separated by "|".
func (d *testDriver) say(arg string) error {
	if d.fake == nil || d.fake.Last() == nil {
		return errors.New("SAY needs --fake-recognizer and an open session")
	}
	d.fake.Last().Emit(strings.Split(arg, "|")...)
	return nil
}

// play loads the current recording and pulls it through the fake output
// until it ends.
func (d *testDriver) play() error {
	pb := d.app.playback
	if err := pb.Load(d.app.session.Snapshot().AudioRef); err != nil {
		return err
	}
	select {
	case <-d.ended:
	default:
	}
	if _, err := pb.TogglePlayPause(); err != nil {
		return err
	}
	out := d.audio.LastOutput()
	for pb.Status().Playing {
		out.Pull(encoder.SampleRate / 4)
	}
	select {
	case st := <-d.ended:
		d.sink.printf("played progress=%s duration=%s", playback.FormatProgress(st.Progress), formatClock(st.Duration))
	case <-time.After(testWaitTimeout):
		return errors.New("timed out waiting for playback to end")
	}
	return nil
}
