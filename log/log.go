package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("PARLA_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return defaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcriptFile, err = os.OpenFile(filepath.Join(dir, "transcript_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(id, level, register, transport string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("level", level).
		Str("register", register).
		Str("transport", transport).
		Msg("session_start")
}

func SessionEnd(id string, turns int, status string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Int("turns", turns).
		Str("status", status).
		Msg("session_end")
}

func StatusChange(id, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("from", from).
		Str("to", to).
		Msg("status")
}

// TurnText appends one finished turn to transcript_log.txt.
func TurnText(speaker, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcriptFile == nil {
		return
	}
	text = strings.ReplaceAll(text, "\n", " ")
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, speaker, text)
	transcriptFile.WriteString(line)
}

type StreamMetricsData struct {
	ConnectMs      float64
	DurationS      float64
	FramesSent     int64
	FramesDropped  int64
	EventsReceived int64
	AudioChunks    int
	AudioS         float64
	DecodeErrors   int
}

func StreamMetrics(id string, m StreamMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Float64("connect_ms", m.ConnectMs).
		Float64("duration_s", m.DurationS).
		Int64("frames_sent", m.FramesSent).
		Int64("frames_dropped", m.FramesDropped).
		Int64("events", m.EventsReceived).
		Int("audio_chunks", m.AudioChunks).
		Float64("audio_s", m.AudioS).
		Int("decode_errors", m.DecodeErrors).
		Msg("stream_metrics")
}
