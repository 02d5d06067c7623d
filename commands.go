package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"talkback/artifact"
	"talkback/audio"
	"talkback/doctor"
	"talkback/log"
	"talkback/playback"
	"talkback/shutdown"
	"talkback/store"
)

// newShowCmd prints the saved transcript and recording.
func newShowCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved transcript and recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			kv, records, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			rec, err := records.Restore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if rec == nil {
					rec = &store.Record{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			if rec == nil {
				fmt.Fprintln(out, "No saved transcript.")
				return nil
			}
			fmt.Fprintf(out, "transcript: %s\n", rec.Transcript)
			audioURL := rec.AudioURL
			if audioURL == "" {
				audioURL = "(none)"
			}
			fmt.Fprintf(out, "audio:      %s\n", audioURL)
			if at, ok, err := kv.UpdatedAt(store.Key); err == nil && ok {
				fmt.Fprintf(out, "saved:      %s\n", at.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the saved transcript and delete its recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			kv, records, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			rec, err := records.Restore()
			if err != nil {
				log.Warnf("clear: %v", err)
			}
			if rec != nil {
				arts, err := artifact.NewStore(cfg.Recording.Dir, cfg.Recording.Format)
				if err != nil {
					return err
				}
				if err := arts.Discard(rec.AudioURL); err != nil {
					return err
				}
			}
			if err := records.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared.")
			return nil
		},
	}
}

func newPlayCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play the saved recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			kv, records, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()
			rec, err := records.Restore()
			if err != nil {
				return err
			}
			if rec == nil || rec.AudioURL == "" {
				return playback.ErrNoRecording
			}

			actx, err := hostCapabilities.audio()
			if err != nil {
				return err
			}
			defer actx.Close()
			player := audio.NewPlayer(actx)
			defer player.Close()
			pb := playback.New(player)

			out := cmd.OutOrStdout()
			ended := make(chan struct{})
			pb.OnChange(func(st playback.Status) {
				fmt.Fprintf(out, "\rProgress: %-7s %s / %s", playback.FormatProgress(st.Progress),
					formatClock(st.Current), formatClock(st.Duration))
				if !st.Playing && st.Current >= st.Duration {
					select {
					case <-ended:
					default:
						close(ended)
					}
				}
			})
			if err := pb.Load(rec.AudioURL); err != nil {
				return err
			}
			if _, err := pb.TogglePlayPause(); err != nil {
				return err
			}

			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			select {
			case <-ended:
			case <-ctx.Done():
				pb.TogglePlayPause()
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func newDevicesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			actx, err := hostCapabilities.audio()
			if err != nil {
				return err
			}
			defer actx.Close()
			devices, err := actx.Devices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices.")
				return nil
			}
			for i, d := range devices {
				mark := " "
				if d.Name == cfg.Audio.DeviceName {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %d  %s\n", mark, i, d.Name)
			}
			return nil
		},
	}
}

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	var listen time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check microphone, playback, recognition and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			code := doctor.Run(cmd.OutOrStdout(), doctor.Env{
				Audio:         hostCapabilities.audio,
				Recognizer:    hostCapabilities.recognizer,
				StorePath:     cfg.Storage.Path,
				RecordingsDir: cfg.Recording.Dir,
				Format:        cfg.Recording.Format,
				Device:        cfg.Audio.DeviceName,
				Listen:        listen,
				Hotkey:        cfg.Hotkey.Enabled,
				Clipboard:     true,
			})
			if code != 0 {
				return errors.New("doctor found issues")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&listen, "listen", time.Second, "how long to sample the microphone")
	return cmd
}

func newTestCmd(opts *globalOptions) *cobra.Command {
	var fake bool
	cmd := &cobra.Command{
		Use:   "test <wav>",
		Short: "Headless mode: replay a WAV as the microphone, driven by stdin",
		Long: `Reads one command per line from stdin:
  START, STOP          start or stop a session
  WAIT                 wait for the stopped session to be saved
  WAIT_AUDIO_DONE      wait until the WAV has been fully captured
  SAY a|b              emit a recognition event (with --fake-recognizer)
  PLAY                 play the current recording to the end
  SLEEP <ms>, QUIT`,
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			initLog()
			defer log.Close()
			return runTestMode(cfg, args[0], fake, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&fake, "fake-recognizer", false, "use a scripted recognizer instead of the configured provider")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "talkback %s\n", version)
		},
	}
}
