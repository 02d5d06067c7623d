// Package doctor probes every capability talkback depends on and reports
// which features will work on this machine.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"talkback/artifact"
	"talkback/audio"
	"talkback/clipboard"
	"talkback/encoder"
	"talkback/hotkey"
	"talkback/store"
	"talkback/transcriber"
)

const probeKey = "doctor-probe"

// Env describes what to probe. Nil constructors skip their checks.
type Env struct {
	Audio         func() (audio.Context, error)
	Recognizer    func() (transcriber.Transcriber, error)
	StorePath     string
	RecordingsDir string
	Format        string
	Device        string
	Listen        time.Duration
	Hotkey        bool
	Clipboard     bool
}

type Result struct {
	Name   string
	Detail string
	Err    error
	// Optional failures degrade a feature instead of disabling recording.
	Optional bool
}

func (r Result) Status() string {
	switch {
	case r.Err == nil:
		return "PASS"
	case r.Optional:
		return "WARN"
	default:
		return "FAIL"
	}
}

type check struct {
	name     string
	optional bool
	run      func() (string, error)
}

// Run prints one line per check to w and returns the process exit code:
// 0 when every required check passed.
func Run(w io.Writer, env Env) int {
	fmt.Fprintln(w, "talkback doctor")
	fmt.Fprintln(w, "===============")

	results := Check(env)
	failed := false
	for i, r := range results {
		line := fmt.Sprintf("[%d/%d] %-12s %s", i+1, len(results), r.Name, r.Status())
		switch {
		case r.Err != nil:
			line += ": " + r.Err.Error()
		case r.Detail != "":
			line += ": " + r.Detail
		}
		fmt.Fprintln(w, line)
		failed = failed || (r.Err != nil && !r.Optional)
	}

	fmt.Fprintln(w)
	if failed {
		fmt.Fprintln(w, "Some checks failed. See details above.")
		return 1
	}
	fmt.Fprintln(w, "All required checks passed.")
	return 0
}

// Check runs the probes in order. When the audio system is unavailable the
// device probes are reported as failed without being attempted.
func Check(env Env) []Result {
	var actx audio.Context
	var audioErr error
	if env.Audio != nil {
		actx, audioErr = env.Audio()
		if audioErr == nil {
			defer actx.Close()
		}
	}

	var checks []check
	if env.Audio != nil {
		checks = append(checks,
			check{"audio", false, func() (string, error) { return probeAudio(actx, audioErr) }},
			check{"microphone", false, func() (string, error) {
				if audioErr != nil {
					return "", audioErr
				}
				return probeMicrophone(actx, env.Device, env.Listen)
			}},
			check{"playback", true, func() (string, error) {
				if audioErr != nil {
					return "", audioErr
				}
				return probePlayback(actx)
			}},
		)
	}
	if env.Recognizer != nil {
		checks = append(checks, check{"recognition", true, func() (string, error) { return probeRecognizer(env.Recognizer) }})
	}
	if env.StorePath != "" {
		checks = append(checks, check{"storage", false, func() (string, error) { return probeStore(env.StorePath) }})
	}
	if env.RecordingsDir != "" {
		checks = append(checks, check{"recordings", false, func() (string, error) { return probeRecordings(env.RecordingsDir, env.Format) }})
	}
	if env.Hotkey {
		checks = append(checks, check{"hotkey", true, hotkey.Diagnose})
	}
	if env.Clipboard {
		checks = append(checks, check{"clipboard", true, probeClipboard})
	}

	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		detail, err := c.run()
		results = append(results, Result{Name: c.name, Detail: detail, Err: err, Optional: c.optional})
	}
	return results
}

func probeAudio(actx audio.Context, err error) (string, error) {
	if err != nil {
		return "", err
	}
	devices, err := actx.Devices()
	if err != nil {
		return "", fmt.Errorf("listing devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no capture devices: %w", audio.ErrUnavailable)
	}
	return fmt.Sprintf("%d capture device(s)", len(devices)), nil
}

func probeMicrophone(actx audio.Context, device string, listen time.Duration) (string, error) {
	if listen <= 0 {
		listen = time.Second
	}
	dev, err := actx.NewCapture(audio.FindDevice(actx, device), audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return "", err
	}
	defer dev.Close()

	var mu sync.Mutex
	var pcm []byte
	got := make(chan struct{}, 1)
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err := dev.Start(); err != nil {
		return "", err
	}
	select {
	case <-got:
		time.Sleep(listen)
	case <-time.After(listen + 2*time.Second):
	}
	dev.Stop()
	dev.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	if len(pcm) == 0 {
		return "", errors.New("device started but delivered no audio")
	}
	return fmt.Sprintf("%s: %.1f KB captured, level %.3f", dev.DeviceName(), float64(len(pcm))/1024, audio.RMS(pcm)), nil
}

func probePlayback(actx audio.Context) (string, error) {
	out, err := actx.NewOutput(encoder.SampleRate, func(buf []int16) { clear(buf) })
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := out.Start(); err != nil {
		return "", err
	}
	out.Stop()
	return "output stream opened", nil
}

func probeRecognizer(newRecognizer func() (transcriber.Transcriber, error)) (string, error) {
	rec, err := newRecognizer()
	if err != nil {
		return "", fmt.Errorf("%w (recording will be audio only)", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := rec.NewSession(ctx, transcriber.SessionConfig{Interim: true})
	if err != nil {
		return "", err
	}
	sess.Feed(make([]byte, encoder.SampleRate/5*2)) // 200ms of silence
	res, err := sess.Close()
	if err != nil {
		return "", err
	}
	detail := rec.Name() + " session ok"
	if res.Stream != nil {
		detail += fmt.Sprintf(", connect %.0fms", res.Stream.ConnectMs)
	}
	return detail, nil
}

func probeStore(path string) (string, error) {
	db, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.Set(probeKey, "ok"); err != nil {
		return "", err
	}
	v, ok, err := db.Get(probeKey)
	if err != nil {
		return "", err
	}
	if !ok || v != "ok" {
		return "", fmt.Errorf("%w: read back %q", store.ErrStorage, v)
	}
	if err := db.Delete(probeKey); err != nil {
		return "", err
	}

	rec, err := store.NewAdapter(db).Restore()
	switch {
	case err != nil:
		return "", err
	case rec == nil:
		return path + " (no saved transcript)", nil
	default:
		return fmt.Sprintf("%s (saved transcript, %d chars)", path, len(rec.Transcript)), nil
	}
}

func probeRecordings(dir, format string) (string, error) {
	st, err := artifact.NewStore(dir, format)
	if err != nil {
		return "", err
	}
	ref, err := st.Write([][]byte{make([]byte, encoder.SampleRate/10*2)})
	if err != nil {
		return "", err
	}
	defer st.Discard(ref)
	if _, err := artifact.Open(ref); err != nil {
		return "", err
	}
	return st.Dir() + " writable", nil
}

func probeClipboard() (string, error) {
	if !clipboard.Available() {
		return "", clipboard.ErrUnsupported
	}
	return "clipboard utility found", nil
}
