package hotkey

import "time"

type Event int

const (
	// Press is every press of the chord.
	Press Event = iota
	// HoldRelease is the release of a press held past the hold threshold.
	HoldRelease
)

func (e Event) String() string {
	if e == HoldRelease {
		return "hold-release"
	}
	return "press"
}

// Toggler turns raw key edges into recording intents: a press toggles, and
// letting go of a long press means "stop" (hold to talk).
type Toggler struct {
	events chan Event
	stop   chan struct{}
	done   chan struct{}
}

func NewToggler(hk Hotkey, holdFor time.Duration) *Toggler {
	t := &Toggler{
		events: make(chan Event, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run(hk, holdFor)
	return t
}

func (t *Toggler) Events() <-chan Event { return t.events }

func (t *Toggler) Close() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
}

func (t *Toggler) run(hk Hotkey, holdFor time.Duration) {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-hk.Keydown():
		}
		t.send(Press)

		timer := time.NewTimer(holdFor)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-hk.Keyup():
			timer.Stop()
			continue
		case <-timer.C:
		}

		select {
		case <-t.stop:
			return
		case <-hk.Keyup():
			t.send(HoldRelease)
		}
	}
}

func (t *Toggler) send(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}
