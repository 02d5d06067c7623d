//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The global hotkey needs the main thread on macOS and Windows. So does
// the desktop window, which then takes it instead.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "gui" {
		run()
		return
	}
	mainthread.Init(run)
}
