package transport

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"parla/codec"
	"parla/log"
)

const (
	DefaultGeminiEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel          = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice          = "Zephyr"

	setupTimeout = 15 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 16 << 20
)

// Gemini speaks the Live API BidiGenerateContent protocol over a websocket.
type Gemini struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewGemini(apiKey string) *Gemini {
	return &Gemini{APIKey: apiKey, Endpoint: DefaultGeminiEndpoint}
}

type setupMessage struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *wireContent     `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		Audio inlineData `json:"audio"`
	} `json:"realtimeInput"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *wireContent   `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

func newSetupMessage(s Setup) setupMessage {
	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	msg := setupMessage{Setup: setupBody{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if s.Voice != "" || s.Language != "" {
		sc := &speechConfig{LanguageCode: s.Language}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cmp.Or(s.Voice, DefaultVoice)
		msg.Setup.GenerationConfig.SpeechConfig = sc
	}
	if s.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: s.SystemInstruction}}}
	}
	return msg
}

// parseServerMessage returns the events carried by one server frame and
// whether the frame acknowledged the setup.
func parseServerMessage(data []byte) ([]Event, bool, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("decoding server message: %w", err)
	}
	if msg.GoAway != nil {
		log.Warnf("gemini go away, time left %s", msg.GoAway.TimeLeft)
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil, msg.SetupComplete != nil, nil
	}

	c := content{turnComplete: sc.TurnComplete, interrupted: sc.Interrupted}
	if sc.InputTranscription != nil {
		c.input = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		c.output = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "audio/") {
				continue
			}
			pcm, err := codec.DecodeBytes(p.InlineData.Data)
			c.audio = append(c.audio, audioPart{pcm: pcm, err: err})
		}
	}
	return c.events(), msg.SetupComplete != nil, nil
}

func (g *Gemini) url() (string, error) {
	endpoint := cmp.Or(g.Endpoint, DefaultGeminiEndpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	if g.APIKey != "" {
		q := u.Query()
		q.Set("key", g.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (g *Gemini) Dial(ctx context.Context, setup Setup, sink Sink) (Conn, error) {
	if g.APIKey == "" && cmp.Or(g.Endpoint, DefaultGeminiEndpoint) == DefaultGeminiEndpoint {
		return nil, ErrMissingAPIKey
	}
	u, err := g.url()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: g.HTTPClient})
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(readLimit)

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	if err := wsjson.Write(setupCtx, conn, newSetupMessage(setup)); err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, closeError("setup", err)
	}

	for {
		_, data, err := conn.Read(setupCtx)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "setup failed")
			return nil, closeError("setup", err)
		}
		_, ok, err := parseServerMessage(data)
		if err != nil {
			log.Warnf("gemini setup: %v", err)
			continue
		}
		if ok {
			break
		}
	}

	readCtx, stop := context.WithCancel(context.Background())
	gc := &geminiConn{conn: conn, ctx: readCtx, cancel: stop, done: make(chan struct{})}
	go gc.readLoop(sink)
	return gc, nil
}

// closeError turns a websocket failure into a ConnectionError, keeping the
// close code and reason when the peer sent them.
func closeError(op string, err error) *ConnectionError {
	ce := &ConnectionError{Op: op, Err: err}
	var wsErr websocket.CloseError
	if errors.As(err, &wsErr) {
		ce.Code = int(wsErr.Code)
		ce.Reason = wsErr.Reason
	}
	return ce
}

type geminiConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	closing   bool
	mu        sync.Mutex
}

func (c *geminiConn) readLoop(sink Sink) {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if closing {
				return
			}
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				sink(Event{Type: EventError, Err: closeError("read", err)})
			}
			ev := Event{Type: EventClose, Code: int(status)}
			var wsErr websocket.CloseError
			if errors.As(err, &wsErr) {
				ev.Reason = wsErr.Reason
			}
			sink(ev)
			return
		}

		events, _, err := parseServerMessage(data)
		if err != nil {
			log.Warnf("gemini: %v", err)
			continue
		}
		for _, ev := range events {
			sink(ev)
		}
	}
}

func (c *geminiConn) Send(frame string) error {
	var msg realtimeInputMessage
	msg.RealtimeInput.Audio = inlineData{MimeType: codec.CaptureMIME, Data: frame}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *geminiConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		err = c.conn.Close(websocket.StatusNormalClosure, "session ended")
		c.cancel()
		<-c.done
	})
	return err
}
