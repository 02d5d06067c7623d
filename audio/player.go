package audio

import (
	"errors"
	"sync"
	"time"

	"talkback/encoder"
)

const timeUpdateEvery = 250 * time.Millisecond

var ErrNotLoaded = errors.New("player: nothing loaded")

type playerEvent struct {
	current, duration time.Duration
	ended             bool
	run               uint64
}

// Player is the playback engine: it owns the decoded samples and the
// playhead, and pulls an Output along. Time updates fire every
// timeUpdateEvery of played audio; OnEnded fires once the playhead hits the
// end, after which the player reports paused and the next Play rewinds.
type Player struct {
	newOutput func(sampleRate int, fill FillFunc) (Output, error)

	mu       sync.Mutex
	out      Output
	samples  []int16
	rate     int
	pos      int
	paused   bool
	nextTick int
	run      uint64 // bumped by every Play
	onTime   func(current, duration time.Duration)
	onEnded  func()

	events chan playerEvent
	done   chan struct{}
	once   sync.Once
}

func NewPlayer(ctx Context) *Player {
	p := &Player{
		newOutput: ctx.NewOutput,
		paused:    true,
		events:    make(chan playerEvent, 32),
		done:      make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *Player) OnTimeUpdate(fn func(current, duration time.Duration)) {
	p.mu.Lock()
	p.onTime = fn
	p.mu.Unlock()
}

func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// Load replaces the loaded audio. Playback of the previous clip stops.
func (p *Player) Load(pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = encoder.SampleRate
	}
	out, err := p.newOutput(sampleRate, p.fill)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.out
	p.out = out
	p.samples = encoder.Samples(pcm)
	p.rate = sampleRate
	p.pos = 0
	p.nextTick = p.tickSamples()
	p.paused = true
	p.mu.Unlock()

	if old != nil {
		old.Stop()
		old.Close()
	}
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	if p.out == nil {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if p.pos >= len(p.samples) {
		p.pos = 0
		p.nextTick = p.tickSamples()
	}
	p.paused = false
	p.run++
	out := p.out
	p.mu.Unlock()

	if err := out.Start(); err != nil {
		p.mu.Lock()
		p.paused = true
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *Player) Pause() {
	p.mu.Lock()
	if p.paused || p.out == nil {
		p.mu.Unlock()
		return
	}
	p.paused = true
	out := p.out
	cur, dur := p.position(), p.duration()
	p.mu.Unlock()

	out.Stop()
	p.emit(playerEvent{current: cur, duration: dur})
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

// Duration is zero until something is loaded.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration()
}

func (p *Player) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		out := p.out
		p.out = nil
		p.paused = true
		p.mu.Unlock()
		if out != nil {
			out.Stop()
			out.Close()
		}
		close(p.done)
	})
}

func (p *Player) fill(buf []int16) {
	p.mu.Lock()
	var evs []playerEvent
	n := 0
	if !p.paused {
		n = copy(buf, p.samples[p.pos:])
		p.pos += n
		for p.pos >= p.nextTick && p.nextTick > 0 && p.pos < len(p.samples) {
			evs = append(evs, playerEvent{current: p.position(), duration: p.duration()})
			p.nextTick += p.tickSamples()
		}
		if p.pos >= len(p.samples) {
			p.paused = true
			dur := p.duration()
			evs = append(evs, playerEvent{current: dur, duration: dur}, playerEvent{ended: true, run: p.run})
		}
	}
	p.mu.Unlock()

	clear(buf[n:])
	for _, ev := range evs {
		p.emit(ev)
	}
}

// emit never blocks the device thread. Time updates may be dropped under
// load; the ended event is always delivered.
func (p *Player) emit(ev playerEvent) {
	select {
	case p.events <- ev:
	default:
		if ev.ended {
			go func() {
				select {
				case p.events <- ev:
				case <-p.done:
				}
			}()
		}
	}
}

func (p *Player) dispatch() {
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.events:
			p.mu.Lock()
			onTime, onEnded, out := p.onTime, p.onEnded, p.out
			// A Play since the end owns the output now.
			stale := ev.run != p.run || !p.paused
			p.mu.Unlock()

			if ev.ended {
				if out != nil && !stale {
					out.Stop()
				}
				if onEnded != nil {
					onEnded()
				}
				continue
			}
			if onTime != nil {
				onTime(ev.current, ev.duration)
			}
		}
	}
}

func (p *Player) tickSamples() int {
	return int(int64(p.rate) * int64(timeUpdateEvery) / int64(time.Second))
}

func (p *Player) position() time.Duration {
	if p.rate == 0 {
		return 0
	}
	return time.Duration(int64(p.pos) * int64(time.Second) / int64(p.rate))
}

func (p *Player) duration() time.Duration {
	if p.rate == 0 {
		return 0
	}
	return time.Duration(int64(len(p.samples)) * int64(time.Second) / int64(p.rate))
}
