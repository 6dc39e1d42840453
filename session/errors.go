package session

import (
	"context"
	"errors"
	"strings"

	"parla/audio"
	"parla/transport"
)

var ErrInvalidConfig = errors.New("session: invalid configuration")

// UserMessage turns err into the Italian sentence shown to the learner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *transport.ConnectionError
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Accesso al microfono negato. Consenti l'uso del microfono e riprova."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "Nessun microfono disponibile. Collega un microfono e riprova."
	case errors.Is(err, transport.ErrMissingAPIKey):
		return "Chiave API mancante: imposta GEMINI_API_KEY e riprova."
	case errors.Is(err, ErrInvalidConfig):
		return "Configurazione della sessione non valida: " + strings.TrimPrefix(err.Error(), ErrInvalidConfig.Error()+": ")
	case errors.Is(err, context.DeadlineExceeded):
		return "Tempo scaduto durante la connessione al tutor."
	case errors.As(err, &ce):
		return "Errore di connessione: " + ce.Detail()
	}
	return "Si è verificato un errore: " + err.Error()
}
