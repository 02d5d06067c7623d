package main

import (
	"fmt"

	"talkback/artifact"
	"talkback/audio"
	"talkback/beep"
	"talkback/config"
	"talkback/encoder"
	"talkback/log"
	"talkback/playback"
	"talkback/session"
	"talkback/store"
	"talkback/transcriber"
)

// capabilities constructs the host capabilities. Tests and the headless
// driver swap in fakes.
type capabilities struct {
	audio      func() (audio.Context, error)
	recognizer func() (transcriber.Transcriber, error)
	// onVoice, when set, enables voice activity detection on the capture
	// and is called the first time a session hears speech.
	onVoice func()
}

var hostCapabilities = capabilities{
	audio:      audio.NewContext,
	recognizer: transcriber.New,
}

// app is the composed program: every long-lived component, wired once.
type app struct {
	cfg        *config.Config
	kv         *store.SQLite
	records    *store.Adapter
	restored   *store.Record
	artifacts  *artifact.Store
	actx       audio.Context
	device     *audio.DeviceInfo
	capture    audio.CaptureDevice
	recognizer transcriber.Transcriber
	player     *audio.Player
	playback   *playback.Controller
	session    *session.Controller
	cues       *beep.Cues
	vad        bool

	// Startup problems that degrade the app without stopping it.
	notices []error
}

func openRecords(cfg *config.Config) (*store.SQLite, *store.Adapter, error) {
	kv, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return kv, store.NewAdapter(kv), nil
}

// restore reads the last record. A corrupt record is reported and treated
// as absent.
func restore(records *store.Adapter) (*store.Record, error) {
	rec, err := records.Restore()
	if err != nil {
		log.Errorf("restore: %v", err)
		return nil, err
	}
	return rec, nil
}

func newApp(cfg *config.Config, caps capabilities, sink session.EventSink) (*app, error) {
	a := &app{cfg: cfg}

	var err error
	a.kv, a.records, err = openRecords(cfg)
	if err != nil {
		return nil, err
	}
	if a.restored, err = restore(a.records); err != nil {
		a.notices = append(a.notices, err)
	}

	a.artifacts, err = artifact.NewStore(cfg.Recording.Dir, cfg.Recording.Format)
	if err != nil {
		a.kv.Close()
		return nil, err
	}

	a.actx, err = caps.audio()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		a.notices = append(a.notices, err)
		a.actx = nil
	} else {
		a.device = audio.FindDevice(a.actx, cfg.Audio.DeviceName)
		a.capture, err = a.actx.NewCapture(a.device, audio.CaptureConfig{
			SampleRate: encoder.SampleRate,
			Channels:   encoder.Channels,
		})
		if err != nil {
			log.Errorf("capture device init error: %v", err)
			a.notices = append(a.notices, fmt.Errorf("%w: %v", session.ErrCapabilityUnavailable, err))
			a.capture = nil
		} else if caps.onVoice != nil {
			if vp, err := newVADProcessor(); err != nil {
				log.Warnf("voice detection unavailable: %v", err)
			} else {
				a.capture = &voiceCapture{CaptureDevice: a.capture, vp: vp, onVoice: caps.onVoice}
				a.vad = true
			}
		}
		a.player = audio.NewPlayer(a.actx)
		a.playback = playback.New(a.player)
		a.cues = beep.New(a.actx)
	}

	a.recognizer, err = caps.recognizer()
	if err != nil {
		log.Warnf("recognizer: %v", err)
		a.recognizer = nil
	} else if cfg.Recognition.Language != "" {
		a.recognizer.SetLanguage(cfg.Recognition.Language)
	}

	a.session = session.New(session.Config{
		Capture:    a.capture,
		Recognizer: a.recognizer,
		Store:      a.records,
		Artifacts:  a.artifacts,
		Sink:       fanoutSink{sink, cueSink{cues: a.cues}},
		Restored:   a.restored,
		Language:   cfg.Recognition.Language,
	})
	return a, nil
}

// loadRestored hands the restored recording to playback. A missing file
// only disables playback.
func (a *app) loadRestored() error {
	if a.playback == nil || a.restored == nil || a.restored.AudioURL == "" {
		return nil
	}
	return a.playback.Load(a.restored.AudioURL)
}

func (a *app) providerName() string {
	if a.recognizer == nil {
		return "audio only"
	}
	name := a.recognizer.Name()
	if lang := a.recognizer.GetLanguage(); lang != "" {
		name += " (" + lang + ")"
	}
	return name
}

func (a *app) deviceName() string {
	if a.capture == nil {
		return "unavailable"
	}
	if a.device == nil {
		return "system default"
	}
	return a.device.Name
}

// Close abandons any running session and releases devices.
func (a *app) Close() {
	a.session.Close()
	if a.player != nil {
		a.player.Close()
	}
	if a.capture != nil {
		a.capture.Close()
	}
	if a.actx != nil {
		a.actx.Close()
	}
	if err := a.kv.Close(); err != nil {
		log.Warnf("close store: %v", err)
	}
}
