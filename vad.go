package main

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"talkback/audio"
	"talkback/encoder"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = encoder.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                          // consecutive speech frames to confirm voice
)

type vadProcessor struct {
	vad *webrtcvad.VAD

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	speechRun     int
}

func newVADProcessor() (*vadProcessor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: v}, nil
}

// Process consumes PCM16 of any length and reports whether voice was
// confirmed by this call for the first time since Reset.
func (p *vadProcessor) Process(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	was := p.voiceDetected
	p.buf = append(p.buf, data...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		p.buf = p.buf[vadFrameBytes:]

		active, err := p.vad.Process(encoder.SampleRate, frame)
		if err != nil {
			continue
		}
		if !active {
			p.speechRun = 0
			continue
		}
		p.speechRun++
		if p.speechRun >= vadDebounce {
			p.voiceDetected = true
		}
	}
	return p.voiceDetected && !was
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *vadProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.voiceDetected = false
	p.speechRun = 0
}

// voiceCapture runs voice activity detection over captured audio on its way
// to the session.
type voiceCapture struct {
	audio.CaptureDevice
	vp      *vadProcessor
	onVoice func()
}

func (c *voiceCapture) SetCallback(cb audio.DataCallback) {
	c.CaptureDevice.SetCallback(func(data []byte, frameCount uint32) {
		if c.vp.Process(data) {
			c.onVoice()
		}
		cb(data, frameCount)
	})
}

func (c *voiceCapture) Start() error {
	c.vp.Reset()
	return c.CaptureDevice.Start()
}
