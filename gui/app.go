//go:build gui

// Package gui is a desktop window over the session and playback
// controllers: a record toggle, the live transcript, and a play/pause
// toggle with progress once a recording exists.
package gui

import (
	"context"
	"errors"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"talkback/log"
	"talkback/playback"
	"talkback/session"
)

const deniedMessage = "Microphone access was denied. Allow talkback to use the microphone and try again."

type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() session.Snapshot
}

type Player interface {
	Load(ref string) error
	TogglePlayPause() (bool, error)
	Status() playback.Status
}

// App implements session.EventSink. Sink calls may come from any
// goroutine; widgets are only touched inside fyne.Do.
type App struct {
	window     fyne.Window
	record     *widget.Button
	play       *widget.Button
	progress   *widget.ProgressBar
	status     *widget.Label
	transcript *widget.Label
	notice     *widget.Label

	mu     sync.Mutex
	rec    Recorder
	player Player // nil without an audio system
	snap   session.Snapshot
	pstat  playback.Status
	text   string // notice line
}

func New(fa fyne.App) *App {
	a := &App{window: fa.NewWindow("talkback")}
	fa.Settings().SetTheme(darkTheme{})

	a.record = widget.NewButton("Start Recording", func() { go a.toggleRecording() })
	a.play = widget.NewButton("Play Recording", func() { go a.togglePlayback() })
	a.progress = widget.NewProgressBar()
	a.progress.TextFormatter = func() string { return playback.FormatProgress(a.progress.Value) }
	a.status = widget.NewLabel("")
	a.transcript = widget.NewLabel("")
	a.transcript.Wrapping = fyne.TextWrapWord
	a.notice = widget.NewLabel("")
	a.notice.Wrapping = fyne.TextWrapWord

	top := container.NewVBox(
		a.status,
		a.record,
		container.NewBorder(nil, nil, a.play, nil, a.progress),
	)
	a.window.SetContent(container.NewBorder(top, a.notice, nil, nil, container.NewVScroll(a.transcript)))
	a.window.Resize(fyne.NewSize(480, 360))
	a.render()
	return a
}

// Bind attaches the controllers. player may be nil.
func (a *App) Bind(rec Recorder, player Player) {
	a.mu.Lock()
	a.rec, a.player = rec, player
	a.snap = rec.Snapshot()
	if player != nil {
		a.pstat = player.Status()
	}
	a.mu.Unlock()
	fyne.Do(a.render)
}

func (a *App) Window() fyne.Window { return a.window }

func (a *App) StateChanged(s session.Snapshot) { a.update(s) }
func (a *App) Finalized(s session.Snapshot)    { a.update(s) }
func (a *App) AudioLevel(float64)              {}
func (a *App) Error(err error)                 { a.ShowError(err) }

func (a *App) Transcript(text string) {
	a.mu.Lock()
	a.snap.Transcript = text
	a.mu.Unlock()
	fyne.Do(a.render)
}

// PlaybackChanged is the playback.Controller OnChange hook.
func (a *App) PlaybackChanged(st playback.Status) {
	a.mu.Lock()
	a.pstat = st
	a.mu.Unlock()
	fyne.Do(a.render)
}

// ShowError puts err on the notice line. A denied microphone opens a
// dialog instead.
func (a *App) ShowError(err error) {
	log.Warnf("notice: %v", err)
	if errors.Is(err, session.ErrPermissionDenied) {
		fyne.Do(func() { dialog.ShowInformation("Microphone", deniedMessage, a.window) })
		return
	}
	a.mu.Lock()
	a.text = err.Error()
	a.mu.Unlock()
	fyne.Do(a.render)
}

// update records a new snapshot and loads its recording when playback
// holds a different one. An empty reference unloads.
func (a *App) update(s session.Snapshot) {
	a.mu.Lock()
	a.snap = s
	player, loaded := a.player, a.pstat.Ref
	a.mu.Unlock()
	fyne.Do(a.render)

	if player == nil || s.AudioRef == loaded {
		return
	}
	go func() {
		if err := player.Load(s.AudioRef); err != nil {
			a.ShowError(err)
			return
		}
		a.PlaybackChanged(player.Status())
	}()
}

func (a *App) toggleRecording() {
	a.mu.Lock()
	rec, state := a.rec, a.snap.State
	a.text = ""
	a.mu.Unlock()
	if rec == nil {
		return
	}

	var err error
	if state == session.Idle {
		err = rec.Start(context.Background())
	} else {
		err = rec.Stop(context.Background())
	}
	if err != nil && !errors.Is(err, session.ErrNotIdle) && !errors.Is(err, session.ErrNotRecording) {
		a.ShowError(err)
	}
}

func (a *App) togglePlayback() {
	a.mu.Lock()
	player := a.player
	a.mu.Unlock()
	if player == nil {
		a.ShowError(playback.ErrNoRecording)
		return
	}
	if _, err := player.TogglePlayPause(); err != nil {
		a.ShowError(err)
		return
	}
	a.PlaybackChanged(player.Status())
}

// render copies the model into the widgets. Runs on the UI goroutine.
func (a *App) render() {
	a.mu.Lock()
	snap, st, text := a.snap, a.pstat, a.text
	a.mu.Unlock()

	switch snap.State {
	case session.Recording:
		a.status.SetText("● Recording")
		a.record.SetText("Stop Recording")
		a.record.Enable()
	case session.Stopping:
		a.status.SetText("Finishing…")
		a.record.SetText("Finishing…")
		a.record.Disable()
	default:
		a.status.SetText("Ready")
		a.record.SetText("Start Recording")
		a.record.Enable()
	}

	if snap.Transcript == "" {
		a.transcript.SetText("No transcript yet")
	} else {
		a.transcript.SetText(snap.Transcript)
	}

	if st.Loaded() && snap.State == session.Idle {
		if st.Playing {
			a.play.SetText("Pause")
		} else {
			a.play.SetText("Play Recording")
		}
		a.progress.SetValue(st.Progress)
		a.play.Show()
		a.progress.Show()
	} else {
		a.play.Hide()
		a.progress.Hide()
	}

	a.notice.SetText(text)
}
