package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrUnavailable means the host has no usable audio system.
	ErrUnavailable = errors.New("audio system unavailable")
	// ErrAccessDenied means a capture device refused to open or start.
	ErrAccessDenied = errors.New("microphone access denied")
)

type DataCallback func(data []byte, frameCount uint32)

// FillFunc supplies playback samples. It runs on the device thread and must
// fill all of buf.
type FillFunc func(buf []int16)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewOutput(sampleRate int, fill FillFunc) (Output, error)
	Close()
}

// CaptureDevice delivers PCM16 chunks to its callback in capture order.
// Stop returns only after the last callback has returned.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

type Output interface {
	Start() error
	Stop()
	Close()
}

// FindDevice returns the device called name, or nil when name is empty or
// unknown (system default).
func FindDevice(ctx Context, name string) *DeviceInfo {
	if name == "" {
		return nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	return nil
}

// RMS returns the normalized root-mean-square level of PCM16 data.
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
