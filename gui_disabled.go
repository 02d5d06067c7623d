//go:build !gui

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNoGUI = errors.New("built without GUI support (rebuild with -tags gui)")

func newGUICmd(*globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:    "gui",
		Short:  "Open the desktop window",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errNoGUI
		},
	}
}
