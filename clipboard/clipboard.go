// Package clipboard copies transcripts to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnsupported means no clipboard utility was found (on Linux, xclip,
// xsel or wl-clipboard).
var ErrUnsupported = errors.New("clipboard unsupported on this system")

func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}
