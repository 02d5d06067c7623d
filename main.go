package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talkback/audio"
	"talkback/config"
	"talkback/hotkey"
	"talkback/log"
	"talkback/playback"
	"talkback/shutdown"
)

var version = "dev"

// Long presses of the hotkey past this are hold-to-talk.
const holdToTalk = 400 * time.Millisecond

type globalOptions struct {
	configPath string
	logPath    string
	device     string
	language   string
	format     string
	setup      bool
	noHotkey   bool
}

// load reads the config, applies flag overrides and points the log
// package at the resolved directory.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if o.device != "" {
		cfg.Audio.DeviceName = o.device
	}
	if o.language != "" {
		cfg.Recognition.Language = o.language
	}
	if o.format != "" {
		cfg.Recording.Format = strings.ToLower(o.format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logFlag := o.logPath
	if logFlag == "" {
		logFlag = cfg.Logging.Dir
	}
	dir, err := log.ResolveDir(logFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(dir)
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLog() {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
}

func run() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "talkback",
		Short: "Record, transcribe live and play back from the terminal",
		Long: `talkback records the microphone, shows a live transcript from a streaming
speech-recognition service, keeps the last transcript and recording, and plays
the recording back.

Set DEEPGRAM_API_KEY to enable transcription. Without it talkback records audio only.`,
		Example: `  talkback
  talkback --setup
  talkback show --json
  talkback play
  talkback doctor`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
	}
	root.Version = version
	root.SetVersionTemplate("talkback {{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/talkback/config.toml)")
	pf.StringVar(&opts.logPath, "logpath", "", "log directory (default: OS-specific location, use ./ for current dir)")
	pf.StringVar(&opts.device, "device", "", "use the named microphone")
	pf.StringVar(&opts.language, "lang", "", "language code for transcription (e.g. en, es, fr)")
	pf.StringVar(&opts.format, "format", "", "recording format: wav or flac")
	root.Flags().BoolVar(&opts.setup, "setup", false, "pick the microphone before starting")
	root.Flags().BoolVar(&opts.noHotkey, "no-hotkey", false, "do not register the global hotkey")

	root.AddCommand(newShowCmd(opts))
	root.AddCommand(newClearCmd(opts))
	root.AddCommand(newPlayCmd(opts))
	root.AddCommand(newDevicesCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newTestCmd(opts))
	root.AddCommand(newGUICmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func runTUI(opts *globalOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	initLog()
	defer log.Close()

	if opts.setup {
		name, err := pickDevice()
		if errors.Is(err, audio.ErrSelectionCancelled) {
			return nil
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\nFalling back to default device\n", err)
		}
		cfg.Audio.DeviceName = name
	}

	caps := hostCapabilities
	caps.onVoice = func() { go tuiSend(voiceMsg{}) }
	a, err := newApp(cfg, caps, tuiSink{})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadRestored(); err != nil {
		a.notices = append(a.notices, err)
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	var hk hotkey.Hotkey
	if cfg.Hotkey.Enabled && !opts.noHotkey {
		hk = hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			a.notices = append(a.notices, fmt.Errorf("global hotkey unavailable: %w", err))
			hk = nil
		} else {
			defer hk.Unregister()
		}
	}
	cfg.Hotkey.Enabled = hk != nil

	p := NewTUIProgram(newTUIModel(a))
	setTUIProgram(p)
	defer setTUIProgram(nil)

	if a.playback != nil {
		a.playback.OnChange(func(st playback.Status) { tuiSend(playbackMsg{Status: st}) })
	}
	if hk != nil {
		toggler := hotkey.NewToggler(hk, holdToTalk)
		defer toggler.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-toggler.Events():
					log.Info("hotkey_" + ev.String())
					tuiSend(hotkeyMsg{Event: ev})
				}
			}
		}()
	}
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// pickDevice runs the terminal picker and returns the chosen device name,
// empty for the system default.
func pickDevice() (string, error) {
	actx, err := hostCapabilities.audio()
	if err != nil {
		return "", err
	}
	defer actx.Close()
	dev, err := audio.SelectDevice(actx)
	if err != nil || dev == nil {
		return "", err
	}
	return dev.Name, nil
}
