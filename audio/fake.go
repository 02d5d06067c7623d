package audio

import (
	"os"
	"sync"
	"time"

	"talkback/encoder"
)

const (
	WAVHeaderSize = 44

	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays canned PCM as a capture device and hands out
// FakeOutputs for playback.
type FakeContext struct {
	pcm      []byte
	realtime bool
	startErr error

	mu      sync.Mutex
	outputs []*FakeOutput
}

// NewFakeContext loads a 16 kHz mono PCM16 WAV file. In realtime mode the
// audio is paced at the sample rate; otherwise it is delivered as fast as
// the callback accepts it.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewFakeContextPCM is NewFakeContext for in-memory PCM.
func NewFakeContextPCM(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

// FailStart makes every capture created afterwards fail to start with err.
func (f *FakeContext) FailStart(err error) { f.startErr = err }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, startErr: f.startErr, audioDone: make(chan struct{})}, nil
}

func (f *FakeContext) NewOutput(sampleRate int, fill FillFunc) (Output, error) {
	out := &FakeOutput{SampleRate: sampleRate, fill: fill}
	f.mu.Lock()
	f.outputs = append(f.outputs, out)
	f.mu.Unlock()
	return out, nil
}

// LastOutput returns the most recently created output, or nil.
func (f *FakeContext) LastOutput() *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		return nil
	}
	return f.outputs[len(f.outputs)-1]
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the canned audio has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

// Start delivers the canned audio once, then stays silent until Stop.
func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	audioDone := f.audioDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(0)
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	}

	go func() {
		defer close(f.feedDone)
		for pos := 0; pos < len(f.pcm); {
			select {
			case <-f.stopCh:
				close(audioDone)
				return
			default:
			}
			cb := f.callback()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}
			pos = f.feedChunk(cb, pos, chunkBytes)
			if interval > 0 {
				select {
				case <-f.stopCh:
					close(audioDone)
					return
				case <-time.After(interval):
				}
			}
		}
		close(audioDone)
		<-f.stopCh
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
	f.mu.Lock()
	f.audioDone = make(chan struct{}) // reset for replay
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}

// FakeOutput is a playback device driven by the test through Pull.
type FakeOutput struct {
	SampleRate int
	fill       FillFunc

	mu      sync.Mutex
	running bool
	closed  bool
}

func (o *FakeOutput) Start() error {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	return nil
}

func (o *FakeOutput) Stop() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *FakeOutput) Close() {
	o.mu.Lock()
	o.running = false
	o.closed = true
	o.mu.Unlock()
}

func (o *FakeOutput) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Pull asks the player for n samples, as a device period would.
func (o *FakeOutput) Pull(n int) []int16 {
	buf := make([]int16, n)
	o.fill(buf)
	return buf
}
