package config

import (
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"A1", LevelA1, false},
		{" b2 ", LevelB2, false},
		{"c2", LevelC2, false},
		{"D1", "", true},
		{"", "", true},
	} {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseRegister(t *testing.T) {
	if len(Registers) != 6 {
		t.Fatalf("%d registers, want 6", len(Registers))
	}
	for _, r := range Registers {
		got, err := ParseRegister(strings.ToUpper(string(r)))
		if err != nil || got != r {
			t.Errorf("ParseRegister(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseRegister("gergale"); err == nil {
		t.Error("expected error for unknown register")
	}
}

func TestSessionValidate(t *testing.T) {
	if err := DefaultSession().Validate(); err != nil {
		t.Fatal(err)
	}
	if err := (Session{Level: "Z9", Register: RegisterFormal}).Validate(); err == nil {
		t.Error("expected invalid level")
	}
	if err := (Session{Level: LevelA1}).Validate(); err == nil {
		t.Error("expected invalid register")
	}
}

func TestInstruction(t *testing.T) {
	s := Session{
		Level:    LevelA2,
		Register: RegisterFormal,
		Scenario: "Al bar, ordini un caffè.",
		Context:  "Il caffè in Italia si beve al banco.",
	}
	got := s.Instruction()
	for _, want := range []string{basePersona, "QCER dello studente: A2", "Lei", "Scenario: Al bar", "si beve al banco"} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q:\n%s", want, got)
		}
	}

	s.SystemPrompt = "Sei un cameriere romano."
	s.Scenario, s.Context = "", ""
	got = s.Instruction()
	if !strings.HasPrefix(got, "Sei un cameriere romano.") || strings.Contains(got, basePersona) {
		t.Errorf("custom prompt not used:\n%s", got)
	}
	if strings.Contains(got, "Scenario") || strings.Contains(got, "Testo di riferimento") {
		t.Errorf("empty sections rendered:\n%s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "PARLA_MODEL", "PARLA_VOICE", "PARLA_TRANSPORT", "PARLA_BEEP", "PARLA_LEVEL", "PARLA_REGISTER", "PARLA_ENDPOINT", "PARLA_LANGUAGE"} {
		t.Setenv(k, "")
	}
	app, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if app.Transport != TransportWebsocket || app.Voice != "Zephyr" || !app.Beep || app.Language != "it-IT" {
		t.Errorf("defaults = %+v", app)
	}
	if app.Session != DefaultSession() {
		t.Errorf("session = %+v", app.Session)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("PARLA_TRANSPORT", "SDK")
	t.Setenv("PARLA_BEEP", "false")
	t.Setenv("PARLA_LEVEL", "c1")
	t.Setenv("PARLA_REGISTER", "colloquiale")

	app, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if app.APIKey != "g-key" || app.Transport != TransportSDK || app.Beep {
		t.Errorf("app = %+v", app)
	}
	if app.Session.Level != LevelC1 || app.Session.Register != RegisterColloquial {
		t.Errorf("session = %+v", app.Session)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, tt := range []struct{ key, value string }{
		{"PARLA_TRANSPORT", "carrier-pigeon"},
		{"PARLA_BEEP", "maybe"},
		{"PARLA_LEVEL", "Z1"},
		{"PARLA_REGISTER", "poetico"},
	} {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q accepted", tt.key, tt.value)
			}
		})
	}
}
