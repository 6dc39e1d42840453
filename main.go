package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"parla/audio"
	"parla/beep"
	"parla/capture"
	"parla/config"
	"parla/doctor"
	"parla/hotkey"
	"parla/log"
	"parla/recorder"
	"parla/session"
	"parla/shutdown"
	"parla/transcript"
	"parla/transport"
)

var version = "dev"

type flags struct {
	level, register, scenario string
	contextFile, promptFile   string
	device                    string
	setup                     bool
	transport                 string
	record                    string
	logPath                   string
	doctor                    bool
	hotkey                    bool
	autoClose                 bool
	tui                       bool
	version                   bool
	crash                     bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.level, "level", "", "CEFR level: A1, A2, B1, B2, C1 or C2 (default from PARLA_LEVEL or B1)")
	flag.StringVar(&f.register, "register", "", "Register: neutro, formale, informale, colloquiale, accademico, burocratico")
	flag.StringVar(&f.scenario, "scenario", "", "Role-play scenario for the tutor (e.g. \"al mercato\")")
	flag.StringVar(&f.contextFile, "context-file", "", "Text file the conversation should discuss")
	flag.StringVar(&f.promptFile, "prompt", "", "File with a custom system prompt replacing the default persona")
	flag.StringVar(&f.device, "device", "", "Use named microphone device")
	flag.BoolVar(&f.setup, "setup", false, "Select microphone device (otherwise uses system default)")
	flag.StringVar(&f.transport, "transport", "", "Live API client: ws or sdk (default from PARLA_TRANSPORT or ws)")
	flag.StringVar(&f.record, "record", "", "Write the microphone to this FLAC file")
	flag.StringVar(&f.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.BoolVar(&f.doctor, "doctor", false, "Run system diagnostics and exit")
	flag.BoolVar(&f.hotkey, "hotkey", false, "Toggle the conversation with "+hotkey.Combo)
	flag.BoolVar(&f.autoClose, "autoclose", false, "End the conversation after a long silence")
	flag.BoolVar(&f.tui, "tui", true, "Run with terminal UI")
	flag.BoolVar(&f.version, "version", false, "Print version and exit")
	flag.BoolVar(&f.crash, "crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()
	return f
}

// applyFlags layers command-line values over the environment.
func applyFlags(app *config.App, f flags) error {
	var err error
	if f.level != "" {
		if app.Session.Level, err = config.ParseLevel(f.level); err != nil {
			return err
		}
	}
	if f.register != "" {
		if app.Session.Register, err = config.ParseRegister(f.register); err != nil {
			return err
		}
	}
	if f.scenario != "" {
		app.Session.Scenario = f.scenario
	}
	if f.contextFile != "" {
		data, err := os.ReadFile(f.contextFile)
		if err != nil {
			return fmt.Errorf("reading context file: %w", err)
		}
		app.Session.Context = string(data)
	}
	if f.promptFile != "" {
		data, err := os.ReadFile(f.promptFile)
		if err != nil {
			return fmt.Errorf("reading prompt file: %w", err)
		}
		app.Session.SystemPrompt = string(data)
	}
	if f.transport != "" {
		app.Transport = strings.ToLower(f.transport)
	}
	return app.Session.Validate()
}

func headerLine(app *config.App, dev *audio.DeviceInfo) string {
	parts := []string{string(app.Session.Level), string(app.Session.Register)}
	if app.Session.Scenario != "" {
		parts = append(parts, app.Session.Scenario)
	}
	mic := "microfono predefinito"
	if dev != nil {
		mic = dev.Name
		if audio.IsBluetooth(dev.Name) {
			mic += " (bluetooth!)"
		}
	}
	return strings.Join(parts, " · ") + "  |  " + mic
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	log.Close()
	fmt.Fprintf(os.Stderr, "Errore: "+format+"\n", args...)
	os.Exit(1)
}

func run() {
	f := parseFlags()

	if f.version {
		fmt.Printf("parla %s\n", version)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env: %v\n", err)
	}

	logPath, err := log.ResolveDir(f.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if f.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	app, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Errore di configurazione: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(app, f); err != nil {
		fmt.Fprintf(os.Stderr, "Errore di configurazione: %v\n", err)
		os.Exit(1)
	}
	if !app.Beep {
		beep.Disable()
	}

	if f.doctor {
		os.Exit(doctor.Run(doctor.Options{Device: f.device, App: app}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if app.APIKey == "" {
		fatalf("%s", session.UserMessage(transport.ErrMissingAPIKey))
	}
	dialer, err := transport.NewDialer(app.Transport, app.APIKey, app.Endpoint)
	if err != nil {
		fatalf("%v", err)
	}

	actx, err := audio.NewContext()
	if err != nil {
		fatalf("%s", session.UserMessage(audio.Classify(err)))
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	switch {
	case f.device != "":
		if device, err = audio.FindDevice(actx, f.device); err != nil {
			fatalf("%v", err)
		}
	case f.setup:
		if device, err = audio.SelectDevice(actx); err != nil {
			if errors.Is(err, audio.ErrSelectionAborted) {
				os.Exit(0)
			}
			log.Warnf("device selection failed: %v", err)
			fmt.Println("Uso il microfono predefinito.")
		}
	}

	var captureOpts []capture.Option
	var rec *recorder.Recorder
	if f.record != "" {
		if rec, err = recorder.Create(f.record); err != nil {
			fatalf("%v", err)
		}
		captureOpts = append(captureOpts, capture.WithTap(rec.Tap))
	}

	autoClose := time.Duration(0)
	if f.autoClose {
		autoClose = defaultAutoClose
	}
	ctrl := newController(app.Session, autoClose)
	sess := session.New(session.Options{
		Dialer:   dialer,
		Audio:    actx,
		Device:   device,
		Observer: ctrl,
		Setup: transport.Setup{
			Model:    app.Model,
			Voice:    app.Voice,
			Language: app.Language,
		},
		TransportName:  app.Transport,
		CaptureOptions: captureOpts,
	})
	ctrl.attach(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.watchSilence(ctx)

	if f.hotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey register error: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: hotkey unavailable: %v\n", err)
		} else {
			defer hk.Unregister()
			toggle := hotkey.NewToggle(hk, hotkey.Debounce)
			defer toggle.Close()
			go func() {
				for range toggle.C() {
					log.Info("hotkey_toggle")
					ctrl.Toggle()
				}
			}()
		}
	}

	quit := make(chan struct{})
	sigChan := shutdown.Channel()
	defer shutdown.Stop(sigChan)

	if f.tui {
		p := NewTUIProgram(ctrl, headerLine(app, device))
		ctrl.setSink(tuiSink{p: p})
		go func() {
			select {
			case <-sigChan:
				p.Quit()
			case <-quit:
			}
		}()
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		ctrl.setSink(nopSink{})
	} else {
		ctrl.setSink(plainSink{w: os.Stdout})
		fmt.Println("parla " + headerLine(app, device))
		ctrl.Start()
		done := make(chan struct{})
		go func() {
			runPlain(os.Stdin, os.Stdout, ctrl)
			close(done)
		}()
		select {
		case <-sigChan:
		case <-done:
		}
	}
	close(quit)

	sess.Close()
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Warnf("%v", err)
		}
	}
	if turns := sess.Turns(); len(turns) > 0 {
		fmt.Print("\n" + transcript.Format(turns))
	}
}
