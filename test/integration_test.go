//go:build integration

package test_test

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("TALKBACK_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "TALKBACK_TEST_BIN not set; build talkback and point it at the binary")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// writeWAV writes durationS seconds of 16 kHz mono PCM16. A zero freq
// gives silence.
func writeWAV(t *testing.T, freq, durationS float64) string {
	t.Helper()
	const headerSize = 44
	const sampleRate = 16000
	numSamples := int(sampleRate * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := 0; i < numSamples; i++ {
		s := int16(math.Sin(2*math.Pi*freq*float64(i)/sampleRate) * 8000)
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}

	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// env isolates one test's config, database, recordings and logs.
type env struct {
	dir string
}

func newEnv(t *testing.T) env {
	return env{dir: t.TempDir()}
}

func (e env) run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmdArgs := append([]string{
		"--config", filepath.Join(e.dir, "config.toml"),
		"--logpath", filepath.Join(e.dir, "logs"),
	}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"TALKBACK_DB="+filepath.Join(e.dir, "talkback.sqlite"),
		"TALKBACK_RECORDINGS_DIR="+filepath.Join(e.dir, "recordings"),
		"TALKBACK_HOTKEY=0",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("talkback %v exited with error: %v\noutput: %s", args, err, out)
	}
	return string(out)
}

func (e env) readLog(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, "logs", filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

type record struct {
	Transcript string `json:"transcript"`
	AudioURL   string `json:"audioUrl"`
}

func (e env) show(t *testing.T) record {
	t.Helper()
	var rec record
	out := e.run(t, "", "show", "--json")
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("show --json: %v\n%s", err, out)
	}
	return rec
}

func TestSessionPersists(t *testing.T) {
	e := newEnv(t)
	wav := writeWAV(t, 440, 0.5)
	out := e.run(t, cmds("START", "SAY hello", "SAY hello| world", "WAIT_AUDIO_DONE", "STOP", "WAIT", "QUIT"),
		"test", "--fake-recognizer", wav)
	if !strings.Contains(out, `saved transcript="hello world"`) {
		t.Fatalf("session not saved:\n%s", out)
	}

	rec := e.show(t)
	if rec.Transcript != "hello world" {
		t.Errorf("transcript = %q", rec.Transcript)
	}
	if !strings.HasPrefix(rec.AudioURL, "file://") || !strings.HasSuffix(rec.AudioURL, ".wav") {
		t.Errorf("audioUrl = %q", rec.AudioURL)
	}
	if !strings.Contains(e.readLog(t, "transcript_log.txt"), "hello world") {
		t.Error("transcript log is missing the transcript")
	}
	if !strings.Contains(e.readLog(t, "diagnostics_log.txt"), "session_end") {
		t.Error("diagnostics log is missing session_end")
	}
}

func TestStartClearsRecord(t *testing.T) {
	e := newEnv(t)
	wav := writeWAV(t, 440, 0.3)
	e.run(t, cmds("START", "SAY first", "STOP", "WAIT", "QUIT"), "test", "--fake-recognizer", wav)
	first := e.show(t)

	// Quit mid-session: the previous record is gone and nothing new is saved.
	e.run(t, cmds("START", "SAY second", "QUIT"), "test", "--fake-recognizer", wav)
	if rec := e.show(t); rec.Transcript != "" || rec.AudioURL != "" {
		t.Errorf("record after abandoned session = %+v", rec)
	}
	if path := strings.TrimPrefix(first.AudioURL, "file://"); fileExists(path) {
		t.Errorf("previous recording %s was not discarded", path)
	}
}

func TestPlayback(t *testing.T) {
	e := newEnv(t)
	wav := writeWAV(t, 440, 0.5)
	out := e.run(t, cmds("START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "PLAY", "QUIT"), "test", "--fake-recognizer", wav)
	if !strings.Contains(out, "played progress=100.0%") {
		t.Errorf("playback did not finish:\n%s", out)
	}
}

func TestFlacFormat(t *testing.T) {
	e := newEnv(t)
	wav := writeWAV(t, 440, 0.3)
	e.run(t, cmds("START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "PLAY", "QUIT"),
		"--format", "flac", "test", "--fake-recognizer", wav)
	if rec := e.show(t); !strings.HasSuffix(rec.AudioURL, ".flac") {
		t.Errorf("audioUrl = %q, want a .flac recording", rec.AudioURL)
	}
}

func TestStopWhileIdle(t *testing.T) {
	e := newEnv(t)
	out := e.run(t, cmds("STOP", "QUIT"), "test", writeWAV(t, 0, 0.2))
	if !strings.Contains(out, "error not recording") {
		t.Errorf("expected a rejected stop:\n%s", out)
	}
}

func TestClear(t *testing.T) {
	e := newEnv(t)
	wav := writeWAV(t, 440, 0.3)
	e.run(t, cmds("START", "SAY keep me", "STOP", "WAIT", "QUIT"), "test", "--fake-recognizer", wav)
	saved := e.show(t)

	e.run(t, "", "clear")
	if rec := e.show(t); rec.Transcript != "" {
		t.Errorf("record after clear = %+v", rec)
	}
	if fileExists(strings.TrimPrefix(saved.AudioURL, "file://")) {
		t.Error("clear left the recording behind")
	}
}

func TestStreamWords(t *testing.T) {
	if os.Getenv("DEEPGRAM_API_KEY") == "" {
		t.Skip("DEEPGRAM_API_KEY not set")
	}
	e := newEnv(t)
	e.run(t, cmds("START", "WAIT_AUDIO_DONE", "SLEEP 300", "STOP", "WAIT", "QUIT"), "test", writeWAV(t, 0, 1.0))
	diag := e.readLog(t, "diagnostics_log.txt")
	if !strings.Contains(diag, "stream_transcription") || !strings.Contains(diag, "connect_ms") {
		t.Error("expected stream metrics in diagnostics")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
