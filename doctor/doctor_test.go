package doctor

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"talkback/audio"
	"talkback/encoder"
	"talkback/transcriber"
)

func fakeAudio() (audio.Context, error) {
	return audio.NewFakeContextPCM(encoder.PCM(make([]int16, 4000))), nil
}

func baseEnv(t *testing.T) Env {
	return Env{
		Audio:         fakeAudio,
		Recognizer:    func() (transcriber.Transcriber, error) { return transcriber.NewFake(), nil },
		StorePath:     ":memory:",
		RecordingsDir: filepath.Join(t.TempDir(), "recordings"),
		Format:        "wav",
		Listen:        10 * time.Millisecond,
	}
}

func TestAllPass(t *testing.T) {
	var out bytes.Buffer
	code := Run(&out, baseEnv(t))
	if code != 0 {
		t.Fatalf("exit code %d:\n%s", code, out.String())
	}
	for _, name := range []string{"audio", "microphone", "playback", "recognition", "storage", "recordings"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("output missing %s check:\n%s", name, out.String())
		}
	}
	if strings.Contains(out.String(), "FAIL") {
		t.Errorf("unexpected failure:\n%s", out.String())
	}
}

func TestAudioUnavailable(t *testing.T) {
	env := baseEnv(t)
	env.Audio = func() (audio.Context, error) { return nil, audio.ErrUnavailable }

	results := Check(env)
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"audio", "microphone", "playback"} {
		if !errors.Is(byName[name].Err, audio.ErrUnavailable) {
			t.Errorf("%s: err = %v", name, byName[name].Err)
		}
	}
	if Run(&bytes.Buffer{}, env) != 1 {
		t.Error("expected exit code 1")
	}
}

func TestMicrophoneDenied(t *testing.T) {
	env := baseEnv(t)
	env.Audio = func() (audio.Context, error) {
		ctx := audio.NewFakeContextPCM(nil)
		ctx.FailStart(audio.ErrAccessDenied)
		return ctx, nil
	}
	var mic Result
	for _, r := range Check(env) {
		if r.Name == "microphone" {
			mic = r
		}
	}
	if !errors.Is(mic.Err, audio.ErrAccessDenied) || mic.Status() != "FAIL" {
		t.Errorf("microphone result = %+v", mic)
	}
}

func TestRecognizerMissingIsWarning(t *testing.T) {
	env := baseEnv(t)
	env.Recognizer = func() (transcriber.Transcriber, error) { return nil, transcriber.ErrUnavailable }

	var out bytes.Buffer
	if code := Run(&out, env); code != 0 {
		t.Fatalf("exit code %d:\n%s", code, out.String())
	}
	if !strings.Contains(out.String(), "WARN") {
		t.Errorf("expected warning:\n%s", out.String())
	}
}

func TestSkippedChecks(t *testing.T) {
	results := Check(Env{StorePath: ":memory:"})
	if len(results) != 1 || results[0].Name != "storage" || results[0].Err != nil {
		t.Errorf("results = %+v", results)
	}
}
