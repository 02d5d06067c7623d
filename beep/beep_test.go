package beep

import (
	"testing"
	"time"

	"talkback/audio"
)

func TestGenerateTick(t *testing.T) {
	s := generateTick(1000, 0.1, 0.5, 40)
	if len(s) != 1600 {
		t.Fatalf("len = %d, want 1600", len(s))
	}
	var peak int16
	for _, v := range s {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 || peak > 16384 {
		t.Errorf("peak = %d", peak)
	}
}

func TestDoubleBeepHasGap(t *testing.T) {
	s := generateDoubleBeep(350, 0.08, 0.05, 0.6, 30)
	tick := int(sampleRate * 0.08)
	gap := int(sampleRate * 0.05)
	if len(s) != 2*tick+gap {
		t.Fatalf("len = %d, want %d", len(s), 2*tick+gap)
	}
	for _, v := range s[tick : tick+gap] {
		if v != 0 {
			t.Fatal("gap is not silent")
		}
	}
}

func TestCuePlaysThenCloses(t *testing.T) {
	fc := audio.NewFakeContextPCM(nil)
	New(fc).PlayStart()

	out := fc.LastOutput()
	if out == nil {
		t.Fatal("no output created")
	}
	if !out.Running() {
		t.Fatal("output not started")
	}
	got := out.Pull(len(startSamples))
	for i := range got {
		if got[i] != startSamples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], startSamples[i])
		}
	}
	for _, v := range out.Pull(64) {
		if v != 0 {
			t.Fatal("expected silence after the cue")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for out.Running() {
		if time.Now().After(deadline) {
			t.Fatal("output still running after the cue ended")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisabledAndNil(t *testing.T) {
	fc := audio.NewFakeContextPCM(nil)
	c := New(fc)
	c.Disable()
	c.PlayEnd()
	if fc.LastOutput() != nil {
		t.Error("disabled cues opened an output")
	}

	var none *Cues
	none.PlayError()
	none.Disable()
}
