package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"talkback/beep"
	"talkback/playback"
	"talkback/session"
)

// TUI message types
type stateMsg struct{ Snap session.Snapshot }
type transcriptMsg struct{ Text string }
type audioLevelMsg struct{ Level float64 }
type finalizedMsg struct{ Snap session.Snapshot }
type errorMsg struct{ Err error }
type playbackMsg struct{ Status playback.Status }
type copiedMsg struct{}
type voiceMsg struct{}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func setTUIProgram(p *tea.Program) {
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()
}

// tuiSend delivers msg to the running program, if any.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiSink forwards controller notifications to the TUI.
type tuiSink struct{}

func (tuiSink) StateChanged(s session.Snapshot) { tuiSend(stateMsg{Snap: s}) }
func (tuiSink) Transcript(text string)          { tuiSend(transcriptMsg{Text: text}) }
func (tuiSink) AudioLevel(level float64)        { tuiSend(audioLevelMsg{Level: level}) }
func (tuiSink) Finalized(s session.Snapshot)    { tuiSend(finalizedMsg{Snap: s}) }
func (tuiSink) Error(err error)                 { tuiSend(errorMsg{Err: err}) }

// fanoutSink lets side effects such as cue sounds observe the controller
// alongside the display.
type fanoutSink []session.EventSink

func (f fanoutSink) StateChanged(s session.Snapshot) {
	for _, sink := range f {
		sink.StateChanged(s)
	}
}

func (f fanoutSink) Transcript(text string) {
	for _, sink := range f {
		sink.Transcript(text)
	}
}

func (f fanoutSink) AudioLevel(level float64) {
	for _, sink := range f {
		sink.AudioLevel(level)
	}
}

func (f fanoutSink) Finalized(s session.Snapshot) {
	for _, sink := range f {
		sink.Finalized(s)
	}
}

func (f fanoutSink) Error(err error) {
	for _, sink := range f {
		sink.Error(err)
	}
}

// cueSink plays the record start and stop cues.
type cueSink struct{ cues *beep.Cues }

func (s cueSink) StateChanged(snap session.Snapshot) {
	switch snap.State {
	case session.Recording:
		go s.cues.PlayStart()
	case session.Stopping:
		go s.cues.PlayEnd()
	}
}

func (cueSink) Transcript(string)          {}
func (cueSink) AudioLevel(float64)         {}
func (cueSink) Finalized(session.Snapshot) {}
func (s cueSink) Error(error)              { go s.cues.PlayError() }
