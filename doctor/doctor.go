package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"parla/audio"
	"parla/beep"
	"parla/capture"
	"parla/codec"
	"parla/config"
	"parla/hotkey"
	"parla/transport"
)

const (
	micDuration   = 3 * time.Second
	silenceFloor  = 0.002
	dialTimeout   = 15 * time.Second
	meterWidth    = 30
	meterFullness = 0.3
)

type Options struct {
	Device string
	App    *config.App
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	restore := saveTerminal()
	defer restore()
	setupInterruptHandler(restore)

	fmt.Println("parla doctor - interactive system diagnostics")
	fmt.Println("=============================================")

	in := bufio.NewReader(os.Stdin)
	allPass := true

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	if !checkMicrophone(actx, opts.Device, in) {
		allPass = false
	}
	if !checkSpeaker(in) {
		allPass = false
	}
	if !checkEndpoint(opts.App) {
		allPass = false
	}
	checkHotkey()

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkMicrophone(actx audio.Context, name string, in *bufio.Reader) bool {
	fmt.Println()
	fmt.Println("[1/4] Microphone")

	var device *audio.DeviceInfo
	var err error
	if name != "" {
		device, err = audio.FindDevice(actx, name)
	} else {
		device, err = audio.SelectDevice(actx)
	}
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  Using device: %s\n", device.Name)

	fmt.Print("  Press Enter and speak for 3 seconds...")
	in.ReadString('\n')

	peak, err := measureLevel(actx, device, micDuration, os.Stdout)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if peak < silenceFloor {
		fmt.Printf("  FAIL: only silence captured (peak RMS %.4f)\n", peak)
		return false
	}
	fmt.Printf("  PASS: peak RMS %.3f\n", peak)
	return true
}

// measureLevel captures for d and draws a live meter on w. It returns the
// loudest RMS seen.
func measureLevel(actx audio.Context, device *audio.DeviceInfo, d time.Duration, w io.Writer) (float64, error) {
	dev, err := actx.NewCapture(device, audio.CaptureConfig{SampleRate: codec.CaptureSampleRate, Channels: codec.Channels})
	if err != nil {
		return 0, audio.Classify(err)
	}

	var mu sync.Mutex
	peak := 0.0
	h, err := capture.Start(context.Background(), dev, capture.SinkFunc(func(string) {}),
		capture.WithLevel(func(rms float64) {
			mu.Lock()
			peak = max(peak, rms)
			mu.Unlock()
			fmt.Fprintf(w, "\r  [%s]", meter(rms, meterWidth))
		}))
	if err != nil {
		return 0, err
	}
	time.Sleep(d)
	h.Stop()
	fmt.Fprintln(w)

	mu.Lock()
	defer mu.Unlock()
	return peak, nil
}

// meter draws rms on a log scale so quiet speech still moves the bar.
func meter(rms float64, width int) string {
	frac := 0.0
	if rms > 0 {
		frac = (20*math.Log10(rms/meterFullness) + 60) / 60
	}
	n := int(math.Round(min(max(frac, 0), 1) * float64(width)))
	return strings.Repeat("#", n) + strings.Repeat(" ", width-n)
}

func checkSpeaker(in *bufio.Reader) bool {
	fmt.Println()
	fmt.Println("[2/4] Speaker")

	beep.PlayConnect()
	time.Sleep(500 * time.Millisecond)
	fmt.Print("  Did you hear a short tone? [y/n]: ")
	if !confirm(in) {
		fmt.Println("  FAIL: playback not confirmed")
		return false
	}
	fmt.Println("  PASS: playback verified by user")
	return true
}

func confirm(in *bufio.Reader) bool {
	answer, _ := in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes" || answer == "s" || answer == "si" || answer == "sì"
}

func checkEndpoint(app *config.App) bool {
	fmt.Println()
	fmt.Println("[3/4] Gemini Live endpoint")

	if app == nil || app.APIKey == "" {
		fmt.Println("  FAIL: GEMINI_API_KEY is not set")
		return false
	}
	d, err := transport.NewDialer(app.Transport, app.APIKey, app.Endpoint)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	took, err := dialOnce(ctx, d, transport.Setup{
		Model:             app.Model,
		Voice:             app.Voice,
		Language:          app.Language,
		SystemInstruction: app.Session.Instruction(),
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: setup complete in %dms (%s, %s)\n", took.Milliseconds(), app.Transport, app.Model)
	return true
}

// dialOnce opens a connection, waits for the setup acknowledgement and
// closes it again.
func dialOnce(ctx context.Context, d transport.Dialer, setup transport.Setup) (time.Duration, error) {
	tr := transport.New(d)
	start := time.Now()
	if err := tr.Open(ctx, setup, func(transport.Event) {}); err != nil {
		return 0, err
	}
	took := time.Since(start)
	if err := tr.Close(); err != nil {
		return took, fmt.Errorf("closing: %w", err)
	}
	return took, nil
}

// checkHotkey only reports; the hotkey is optional.
func checkHotkey() {
	fmt.Println()
	fmt.Println("[4/4] Global hotkey (optional)")
	msg, err := hotkey.Diagnose()
	if err != nil {
		fmt.Printf("  WARN: %v\n", err)
		return
	}
	fmt.Printf("  OK: %s\n", msg)
}
