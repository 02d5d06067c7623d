package clipboard

import (
	"errors"
	"testing"
)

func TestCopyRoundTrip(t *testing.T) {
	if !Available() {
		if err := Copy("x"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Copy = %v, want ErrUnsupported", err)
		}
		t.Skip("no clipboard utility available")
	}
	if err := Copy("talkback-clipboard-test"); err != nil {
		t.Skipf("clipboard not usable here: %v", err)
	}
	got, err := Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != "talkback-clipboard-test" {
		t.Errorf("Read = %q", got)
	}
}
