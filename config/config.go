package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	TransportWebsocket = "ws"
	TransportSDK       = "sdk"
)

// App holds process-wide settings read from the environment.
type App struct {
	APIKey    string
	Model     string
	Voice     string
	Language  string
	Transport string
	Endpoint  string
	Beep      bool
	Session   Session
}

// Load reads the environment. Callers load .env files beforehand.
func Load() (*App, error) {
	beep, err := parseBoolEnv("PARLA_BEEP", true)
	if err != nil {
		return nil, err
	}

	transport := strings.ToLower(getEnvOrDefault("PARLA_TRANSPORT", TransportWebsocket))
	if transport != TransportWebsocket && transport != TransportSDK {
		return nil, fmt.Errorf("invalid PARLA_TRANSPORT value: %q", transport)
	}

	sess := DefaultSession()
	if v := strings.TrimSpace(os.Getenv("PARLA_LEVEL")); v != "" {
		if sess.Level, err = ParseLevel(v); err != nil {
			return nil, fmt.Errorf("PARLA_LEVEL: %w", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("PARLA_REGISTER")); v != "" {
		if sess.Register, err = ParseRegister(v); err != nil {
			return nil, fmt.Errorf("PARLA_REGISTER: %w", err)
		}
	}

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}

	return &App{
		APIKey:    apiKey,
		Model:     strings.TrimSpace(os.Getenv("PARLA_MODEL")),
		Voice:     getEnvOrDefault("PARLA_VOICE", "Zephyr"),
		Language:  getEnvOrDefault("PARLA_LANGUAGE", "it-IT"),
		Transport: transport,
		Endpoint:  strings.TrimSpace(os.Getenv("PARLA_ENDPOINT")),
		Beep:      beep,
		Session:   sess,
	}, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}
