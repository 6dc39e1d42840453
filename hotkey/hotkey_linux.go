//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

// struct input_event on 64-bit kernels: timeval, type, code, value.
const inputEventSize = 24

var (
	inputDir = "/dev/input"
	sysDir   = "/sys/class/input"
)

var errNoKeyboard = errors.New("no device can send " + Combo + " (is the user in the 'input' group?)")

type linuxHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}

	mu    sync.Mutex
	files []*os.File
}

func New() Hotkey {
	return &linuxHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *linuxHotkey) Register() error {
	files, found, err := openKeyboards()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER, then re-login)", found)
	}

	h.mu.Lock()
	h.files = files
	h.mu.Unlock()
	for _, f := range files {
		go h.watch(f)
	}
	return nil
}

// watch feeds one device's key events through its own chord tracker until
// the reader fails, which is how Unregister stops it.
func (h *linuxHotkey) watch(r io.Reader) {
	var c chord
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := io.ReadAtLeast(r, buf, inputEventSize)
		if err != nil {
			return
		}
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			code, value, ok := keyEvent(buf[off : off+inputEventSize])
			if !ok {
				continue
			}
			switch c.feed(code, value) {
			case chordDown:
				notify(h.keydown)
			case chordUp:
				notify(h.keyup)
			}
		}
	}
}

// keyEvent decodes one input_event and reports whether it is a key event.
func keyEvent(b []byte) (code uint16, value int32, ok bool) {
	if binary.LittleEndian.Uint16(b[16:]) != evKey {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint16(b[18:]), int32(binary.LittleEndian.Uint32(b[20:])), true
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

type chordEdge int

const (
	chordNone chordEdge = iota
	chordDown
	chordUp
)

// chord tracks Ctrl+Shift+Space across key events from one device.
// Autorepeat (value 2) keeps the held state.
type chord struct {
	ctrl, shift, space bool
}

func (c *chord) feed(code uint16, value int32) chordEdge {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return chordDown
		}
		if released && c.space {
			c.space = false
			return chordUp
		}
	}
	return chordNone
}

func (h *linuxHotkey) Unregister() {
	h.mu.Lock()
	files := h.files
	h.files = nil
	h.mu.Unlock()
	for _, f := range files {
		f.Close()
	}
}

func (h *linuxHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *linuxHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

// openKeyboards opens every event device able to produce the chord. found
// counts the candidates, including those that could not be opened.
func openKeyboards() (files []*os.File, found int, err error) {
	paths, err := keyboards()
	if err != nil {
		return nil, 0, err
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	return files, len(paths), nil
}

func keyboards() ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("scanning input devices: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sysDir, e.Name(), "device", "capabilities", "key"))
		if err != nil || !canChord(string(data)) {
			continue
		}
		paths = append(paths, filepath.Join(inputDir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, errNoKeyboard
	}
	return paths, nil
}

// canChord reads a sysfs key capability bitmap, hex words with the lowest
// keycodes last, and checks for Ctrl, Shift and Space.
func canChord(caps string) bool {
	words := strings.Fields(caps)
	if len(words) == 0 {
		return false
	}
	low, err := strconv.ParseUint(words[len(words)-1], 16, 64)
	if err != nil {
		return false
	}
	for _, code := range []uint{keyLCtrl, keyLShift, keySpace} {
		if low&(1<<code) == 0 {
			return false
		}
	}
	return true
}

func Diagnose() (string, error) {
	files, found, err := openKeyboards()
	if err != nil {
		return "", err
	}
	for _, f := range files {
		f.Close()
	}
	if len(files) == 0 {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", found)
	}
	return fmt.Sprintf("%d of %d keyboard(s) readable; %s ready", len(files), found, Combo), nil
}
