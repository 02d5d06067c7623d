//go:build linux

package hotkey

import (
	"encoding/binary"
	"testing"
)

func inputEvent(code uint16, value int32) []byte {
	b := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(b[16:], evKey)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func events(evs ...[]byte) []byte {
	var out []byte
	for _, e := range evs {
		out = append(out, e...)
	}
	return out
}

func TestChordState(t *testing.T) {
	for _, tt := range []struct {
		name  string
		buf   []byte
		downs int
		ups   int
	}{
		{
			name: "full chord",
			buf: events(
				inputEvent(keyLCtrl, keyPress), inputEvent(keyLShift, keyPress),
				inputEvent(keySpace, keyPress), inputEvent(keySpace, keyRelease),
			),
			downs: 1, ups: 1,
		},
		{
			name:  "space alone",
			buf:   events(inputEvent(keySpace, keyPress), inputEvent(keySpace, keyRelease)),
			downs: 0, ups: 0,
		},
		{
			name: "autorepeat ignored",
			buf: events(
				inputEvent(keyRCtrl, keyPress), inputEvent(keyRShift, keyPress),
				inputEvent(keySpace, keyPress), inputEvent(keySpace, 2), inputEvent(keySpace, 2),
				inputEvent(keySpace, keyRelease),
			),
			downs: 1, ups: 1,
		},
		{
			name: "ctrl released first",
			buf: events(
				inputEvent(keyLCtrl, keyPress), inputEvent(keyLShift, keyPress),
				inputEvent(keyLCtrl, keyRelease), inputEvent(keySpace, keyPress),
			),
			downs: 0, ups: 0,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var s chordState
			downs, ups := 0, 0
			s.feed(tt.buf, func() { downs++ }, func() { ups++ })
			if downs != tt.downs || ups != tt.ups {
				t.Errorf("downs=%d ups=%d, want %d/%d", downs, ups, tt.downs, tt.ups)
			}
		})
	}
}
