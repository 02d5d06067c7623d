package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"talkback/audio"
	"talkback/clipboard"
	"talkback/hotkey"
	"talkback/log"
	"talkback/playback"
	"talkback/session"
)

const (
	tickInterval = 100 * time.Millisecond
	meterWidth   = 32
	// Without voice detection, a peak RMS below this after a second of
	// recording means the microphone is probably muted.
	voiceFloor = 0.02
)

type tickMsg time.Time
type hotkeyMsg struct{ Event hotkey.Event }

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stoppingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	copiedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	meterOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	blockingStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)
)

type tuiModel struct {
	ctrl   *session.Controller
	player *playback.Controller // nil without an audio system

	snap       session.Snapshot
	play       playback.Status
	audioLevel float64
	peakLevel  float64
	frame      int
	vad        bool // voice activity detection feeds voiceSeen
	voiceSeen  bool

	notice   string
	blocking bool
	copied   bool

	width, height int
	providerLine  string
	deviceLine    string
	hotkeyEnabled bool
}

func newTUIModel(a *app) tuiModel {
	m := tuiModel{
		ctrl:          a.session,
		player:        a.playback,
		snap:          a.session.Snapshot(),
		providerLine:  "recognition: " + a.providerName(),
		deviceLine:    "mic: " + a.deviceName(),
		hotkeyEnabled: a.cfg.Hotkey.Enabled,
		vad:           a.vad,
	}
	if a.playback != nil {
		m.play = a.playback.Status()
	}
	if len(a.notices) > 0 {
		m = m.showError(errors.Join(a.notices...))
	}
	return m
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		if m.snap.State == session.Recording {
			m.snap.Elapsed = m.ctrl.Snapshot().Elapsed
		}
		return m, tuiTick()

	case hotkeyMsg:
		if msg.Event == hotkey.HoldRelease && m.snap.State != session.Recording {
			return m, nil
		}
		return m, m.toggleRecording()

	case stateMsg:
		if msg.Snap.State == session.Recording && m.snap.State != session.Recording {
			m.audioLevel, m.peakLevel = 0, 0
			m.voiceSeen = false
			m.copied = false
		}
		m.snap = msg.Snap
		return m, m.syncPlayback()

	case transcriptMsg:
		m.snap.Transcript = msg.Text

	case audioLevelMsg:
		if m.snap.State == session.Recording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			m.peakLevel = max(m.peakLevel, msg.Level)
		}

	case finalizedMsg:
		m.snap = msg.Snap
		m.audioLevel = 0
		return m, m.syncPlayback()

	case playbackMsg:
		m.play = msg.Status

	case copiedMsg:
		m.copied = true

	case voiceMsg:
		m.voiceSeen = true

	case errorMsg:
		m = m.showError(msg.Err)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.blocking {
		m.blocking = false
		m.notice = ""
		return m, nil
	}
	m.notice = ""

	switch key {
	case "q":
		return m, tea.Quit
	case " ", "r":
		return m, m.toggleRecording()
	case "p":
		return m, m.togglePlayback()
	case "c":
		return m, copyTranscript(m.snap.Transcript)
	}
	return m, nil
}

// showError puts err on the notice line. A denied microphone blocks the
// UI until a key is pressed.
func (m tuiModel) showError(err error) tuiModel {
	log.Warnf("notice: %v", err)
	if errors.Is(err, session.ErrPermissionDenied) {
		m.blocking = true
		m.notice = "Microphone access was denied. Allow talkback to use the microphone and try again."
		return m
	}
	m.notice = err.Error()
	return m
}

func (m tuiModel) toggleRecording() tea.Cmd {
	ctrl, state := m.ctrl, m.snap.State
	return func() tea.Msg {
		var err error
		if state == session.Idle {
			err = ctrl.Start(context.Background())
		} else {
			err = ctrl.Stop(context.Background())
		}
		if err == nil || errors.Is(err, session.ErrNotIdle) || errors.Is(err, session.ErrNotRecording) {
			return nil
		}
		return errorMsg{Err: err}
	}
}

func (m tuiModel) togglePlayback() tea.Cmd {
	player := m.player
	return func() tea.Msg {
		if player == nil {
			return errorMsg{Err: fmt.Errorf("playback: %w", audio.ErrUnavailable)}
		}
		if _, err := player.TogglePlayPause(); err != nil {
			return errorMsg{Err: err}
		}
		return playbackMsg{Status: player.Status()}
	}
}

// syncPlayback loads the session's audio reference when it differs from
// what playback holds. An empty reference unloads.
func (m tuiModel) syncPlayback() tea.Cmd {
	if m.player == nil || m.snap.AudioRef == m.play.Ref {
		return nil
	}
	player, ref := m.player, m.snap.AudioRef
	return func() tea.Msg {
		if err := player.Load(ref); err != nil {
			return errorMsg{Err: err}
		}
		return playbackMsg{Status: player.Status()}
	}
}

func copyTranscript(text string) tea.Cmd {
	return func() tea.Msg {
		if text == "" {
			return nil
		}
		if err := clipboard.Copy(text); err != nil {
			return errorMsg{Err: err}
		}
		return copiedMsg{}
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := max(m.width-2, 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render("talkback") + " " + dimStyle.Render(version) + "\n\n")
	b.WriteString(m.statusLine() + "\n")
	if m.snap.State == session.Recording {
		b.WriteString(renderMeter(m.audioLevel) + "\n")
		if m.snap.Elapsed > time.Second && !m.hearsVoice() {
			b.WriteString(warnStyle.Render("⚠ no voice detected") + "\n")
		}
	}
	b.WriteString(dimStyle.Render(m.providerLine) + "\n")
	b.WriteString(dimStyle.Render(m.deviceLine) + "\n\n")

	if m.snap.Transcript == "" {
		b.WriteString(idleStyle.Render("No transcript yet") + "\n")
	} else {
		lines := wrapText(strings.TrimSpace(m.snap.Transcript), width)
		for i, line := range lines {
			b.WriteString(textStyle.Render(line))
			if i == len(lines)-1 && m.copied {
				b.WriteString(" " + copiedStyle.Render("[✓ copied]"))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n" + m.playbackLine() + "\n")

	if m.notice != "" {
		b.WriteString("\n")
		if m.blocking {
			box := blockingStyle.Width(min(width, 60)).Render(m.notice + "\n\n" + dimStyle.Render("press any key"))
			b.WriteString(box + "\n")
		} else {
			b.WriteString(warnStyle.Render(m.notice) + "\n")
		}
	}

	b.WriteString("\n" + m.helpLine())
	return b.String()
}

func (m tuiModel) hearsVoice() bool {
	if m.vad {
		return m.voiceSeen
	}
	return m.peakLevel >= voiceFloor
}

func (m tuiModel) statusLine() string {
	switch m.snap.State {
	case session.Recording:
		dot := "●"
		if (m.frame/5)%2 == 1 {
			dot = " "
		}
		return recStyle.Render(fmt.Sprintf("%s REC %.1fs", dot, m.snap.Elapsed.Seconds()))
	case session.Stopping:
		return stoppingStyle.Render("◌ FINISHING")
	}
	return idleStyle.Render("○ STANDBY")
}

func (m tuiModel) playbackLine() string {
	if !m.play.Loaded() {
		return dimStyle.Render("No recording")
	}
	icon := "❚❚"
	if m.play.Playing {
		icon = "▶"
	}
	return fmt.Sprintf("%s Progress: %s  %s / %s", icon,
		playback.FormatProgress(m.play.Progress),
		formatClock(m.play.Current), formatClock(m.play.Duration))
}

func (m tuiModel) helpLine() string {
	line := helpKeyStyle.Render("space") + helpStyle.Render(" record  ") +
		helpKeyStyle.Render("p") + helpStyle.Render(" play  ") +
		helpKeyStyle.Render("c") + helpStyle.Render(" copy  ") +
		helpKeyStyle.Render("q") + helpStyle.Render(" quit")
	if m.hotkeyEnabled {
		line += helpStyle.Render("  ·  ") + helpKeyStyle.Render(hotkey.Label) + helpStyle.Render(" anywhere")
	}
	return line
}

func renderMeter(level float64) string {
	n := int(min(level*4, 1) * meterWidth)
	return meterOnStyle.Render(strings.Repeat("█", n)) + meterOffStyle.Render(strings.Repeat("░", meterWidth-n))
}

func formatClock(d time.Duration) string {
	s := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
