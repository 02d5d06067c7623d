// Package session runs one recording at a time: it drives capture and
// recognition, keeps the live transcript, and on stop assembles the audio
// artifact and persists the result.
package session

import (
	"errors"
	"time"

	"talkback/store"
)

// State is the controller's position in Idle → Recording → Stopping → Idle.
type State int

const (
	Idle State = iota
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrCapabilityUnavailable  = errors.New("audio capture unavailable")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	ErrNotIdle                = errors.New("session already active")
	ErrNotRecording           = errors.New("not recording")
	ErrClosed                 = errors.New("session controller closed")
)

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State      State
	Transcript string
	AudioRef   string
	Chunks     int
	Bytes      int
	Elapsed    time.Duration
}

// Persister saves the finished session and forgets it when a new one starts.
type Persister interface {
	Persist(rec store.Record) error
	Clear() error
}

// Artifacts turns captured chunks into a playable audio reference.
type Artifacts interface {
	Write(chunks [][]byte) (ref string, err error)
	Discard(ref string) error
}

// EventSink receives controller notifications. Calls come from the
// controller goroutine in order and must not block for long.
type EventSink interface {
	StateChanged(s Snapshot)
	Transcript(text string)
	AudioLevel(level float64)
	Finalized(s Snapshot)
	Error(err error)
}

type nopSink struct{}

func (nopSink) StateChanged(Snapshot) {}
func (nopSink) Transcript(string)     {}
func (nopSink) AudioLevel(float64)    {}
func (nopSink) Finalized(Snapshot)    {}
func (nopSink) Error(error)           {}
