package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// SelectDevice lets the user pick a capture device on the terminal. The
// first entry is the system default, returned as nil.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices: %w", ErrUnavailable)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	choice, err := pickDevice(os.Stdin, os.Stderr, devices)
	if err != nil || choice < 0 {
		return nil, err
	}
	return &devices[choice], nil
}

// pickDevice runs the picker over raw-mode keystrokes. It returns -1 for
// the system default.
func pickDevice(in io.Reader, out io.Writer, devices []DeviceInfo) (int, error) {
	labels := append([]string{"System default"}, deviceNames(devices)...)
	cursor := 0

	render := func() {
		fmt.Fprint(out, "\r\x1b[J")
		fmt.Fprint(out, "Microphone (↑/↓ or j/k, Enter to confirm, q to cancel):\r\n\r\n")
		for i, l := range labels {
			if i == cursor {
				fmt.Fprintf(out, "  \x1b[1;36m▶ %s\x1b[0m\r\n", l)
			} else {
				fmt.Fprintf(out, "    %s\r\n", l)
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}

		switch {
		case n == 1 && (buf[0] == '\r' || buf[0] == '\n'):
			fmt.Fprint(out, "\r\n")
			return cursor - 1, nil
		case n == 1 && (buf[0] == 3 || buf[0] == 'q'):
			fmt.Fprint(out, "\r\n")
			return 0, ErrSelectionCancelled
		case n == 1 && buf[0] == 'j', n == 3 && buf[0] == 0x1b && buf[2] == 'B':
			cursor = min(cursor+1, len(labels)-1)
		case n == 1 && buf[0] == 'k', n == 3 && buf[0] == 0x1b && buf[2] == 'A':
			cursor = max(cursor-1, 0)
		}

		fmt.Fprintf(out, "\x1b[%dA", len(labels)+2)
		render()
	}
}

func deviceNames(devices []DeviceInfo) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}
