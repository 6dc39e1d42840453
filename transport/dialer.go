package transport

import "fmt"

// NewDialer picks the Gemini Live client: "ws" speaks the websocket
// protocol directly, "sdk" goes through the genai client library.
func NewDialer(kind, apiKey, endpoint string) (Dialer, error) {
	switch kind {
	case "", "ws":
		g := NewGemini(apiKey)
		if endpoint != "" {
			g.Endpoint = endpoint
		}
		return g, nil
	case "sdk":
		return NewGenAI(apiKey), nil
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}
