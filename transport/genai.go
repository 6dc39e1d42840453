package transport

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"parla/codec"
	"parla/log"
)

// GenAI reaches the same Live endpoint through the official Go SDK.
type GenAI struct {
	APIKey string
}

func NewGenAI(apiKey string) *GenAI {
	return &GenAI{APIKey: apiKey}
}

func liveConfig(s Setup) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: s.Language,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cmp.Or(s.Voice, DefaultVoice)},
			},
		},
	}
	if s.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s.SystemInstruction}}}
	}
	return cfg
}

func (g *GenAI) Dial(ctx context.Context, setup Setup, sink Sink) (Conn, error) {
	if g.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ConnectionError{Op: "client", Err: err}
	}

	model := strings.TrimPrefix(cmp.Or(setup.Model, DefaultModel), "models/")
	session, err := client.Live.Connect(ctx, model, liveConfig(setup))
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	type result struct {
		msg *genai.LiveServerMessage
		err error
	}
	first := make(chan result, 1)
	go func() {
		msg, err := session.Receive()
		first <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		session.Close()
		return nil, &ConnectionError{Op: "setup", Err: ctx.Err()}
	case r := <-first:
		if r.err != nil {
			session.Close()
			return nil, &ConnectionError{Op: "setup", Err: r.err}
		}
		if r.msg.SetupComplete == nil {
			// some servers skip the ack and stream content straight away
			for _, ev := range liveEvents(r.msg) {
				sink(ev)
			}
		}
	}

	c := &genaiConn{session: session, done: make(chan struct{})}
	go c.readLoop(sink)
	return c, nil
}

func liveEvents(msg *genai.LiveServerMessage) []Event {
	if msg.GoAway != nil {
		log.Warn("genai live: go away received")
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil
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
			if p != nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				c.audio = append(c.audio, audioPart{pcm: p.InlineData.Data})
			}
		}
	}
	return c.events()
}

type genaiConn struct {
	session *genai.Session
	done    chan struct{}

	mu      sync.Mutex
	closing bool
	once    sync.Once
}

func (c *genaiConn) readLoop(sink Sink) {
	defer close(c.done)
	for {
		msg, err := c.session.Receive()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				for _, ev := range receiveEnd(err) {
					sink(ev)
				}
			}
			return
		}
		for _, ev := range liveEvents(msg) {
			sink(ev)
		}
	}
}

// receiveEnd maps the error that ended Receive onto the events the session
// sees. The SDK reads with gorilla/websocket, so a close frame from the server
// surfaces as *websocket.CloseError; a normal or going-away close is not a
// failure.
func receiveEnd(err error) []Event {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return []Event{
			{Type: EventError, Err: &ConnectionError{Op: "read", Err: err}},
			{Type: EventClose, Reason: err.Error()},
		}
	}
	closed := Event{Type: EventClose, Code: ce.Code, Reason: ce.Text}
	if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
		return []Event{closed}
	}
	return []Event{
		{Type: EventError, Err: &ConnectionError{Op: "read", Code: ce.Code, Reason: ce.Text, Err: err}},
		closed,
	}
}

func (c *genaiConn) Send(frame string) error {
	pcm, err := codec.DecodeBytes(frame)
	if err != nil {
		return err
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: codec.CaptureMIME},
	})
}

func (c *genaiConn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		err = c.session.Close()
		<-c.done
	})
	return err
}
