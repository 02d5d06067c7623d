//go:build gui

package main

import (
	"context"
	"errors"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"talkback/gui"
	"talkback/log"
	"talkback/shutdown"
)

func newGUICmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(opts)
		},
	}
}

// runGUI owns the calling thread until the window closes. On macOS and
// Windows that must be the main thread.
func runGUI(opts *globalOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	initLog()
	defer log.Close()

	fa := fyneapp.NewWithID("io.talkback.gui")
	g := gui.New(fa)

	a, err := newApp(cfg, hostCapabilities, g)
	if err != nil {
		return err
	}
	defer a.Close()

	var player gui.Player
	if a.playback != nil {
		player = a.playback
		a.playback.OnChange(g.PlaybackChanged)
	}
	g.Bind(a.session, player)

	if err := a.loadRestored(); err != nil {
		a.notices = append(a.notices, err)
	}
	if len(a.notices) > 0 {
		g.ShowError(errors.Join(a.notices...))
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	go func() {
		<-ctx.Done()
		fa.Quit()
	}()

	log.Info("gui_start")
	g.Window().ShowAndRun()
	return nil
}
