package config

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range Levels {
		if v == l {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid level %q (want one of A1, A2, B1, B2, C1, C2)", s)
}

type Register string

const (
	RegisterNeutral      Register = "neutro"
	RegisterFormal       Register = "formale"
	RegisterInformal     Register = "informale"
	RegisterColloquial   Register = "colloquiale"
	RegisterAcademic     Register = "accademico"
	RegisterBureaucratic Register = "burocratico"
)

var Registers = []Register{
	RegisterNeutral, RegisterFormal, RegisterInformal,
	RegisterColloquial, RegisterAcademic, RegisterBureaucratic,
}

func ParseRegister(s string) (Register, error) {
	r := Register(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Registers {
		if v == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid register %q", s)
}

// Session is fixed for the lifetime of one live conversation.
type Session struct {
	Level        Level
	Register     Register
	SystemPrompt string
	Scenario     string
	Context      string
}

func DefaultSession() Session {
	return Session{Level: LevelB1, Register: RegisterNeutral}
}

func (s Session) Validate() error {
	if _, err := ParseLevel(string(s.Level)); err != nil {
		return err
	}
	if _, err := ParseRegister(string(s.Register)); err != nil {
		return err
	}
	return nil
}

var levelGuidance = map[Level]string{
	LevelA1: "Usa frasi brevissime, il presente indicativo e un lessico di base. Parla lentamente e ripeti le parole chiave.",
	LevelA2: "Usa frasi semplici, il passato prossimo e lessico quotidiano. Riformula se lo studente non capisce.",
	LevelB1: "Usa frasi di media lunghezza, imperfetto e futuro, e introduci qualche espressione idiomatica comune.",
	LevelB2: "Usa un italiano naturale con congiuntivo e condizionale, e stimola lo studente ad argomentare.",
	LevelC1: "Usa un italiano ricco e sfumato, con lessico specifico e strutture complesse.",
	LevelC2: "Parla come con un madrelingua colto, senza semplificare, con registro e lessico raffinati.",
}

var registerGuidance = map[Register]string{
	RegisterNeutral:      "Mantieni un tono neutro e cordiale.",
	RegisterFormal:       "Usa il Lei e un tono formale e cortese.",
	RegisterInformal:     "Dai del tu e mantieni un tono amichevole.",
	RegisterColloquial:   "Usa un italiano parlato e colloquiale, con espressioni di tutti i giorni.",
	RegisterAcademic:     "Usa un registro accademico, preciso e argomentativo.",
	RegisterBureaucratic: "Usa il linguaggio degli uffici e della pubblica amministrazione, spiegando i termini difficili.",
}

const basePersona = "Sei un tutor di lingua italiana. Conduci una conversazione parlata con uno studente. " +
	"Rispondi sempre e solo in italiano, con battute brevi, e fai una domanda alla volta. " +
	"Se lo studente commette un errore, riformula la frase corretta in modo naturale senza interrompere il dialogo."

// Instruction composes the system instruction sent when the connection opens.
func (s Session) Instruction() string {
	var b strings.Builder
	if s.SystemPrompt != "" {
		b.WriteString(strings.TrimSpace(s.SystemPrompt))
	} else {
		b.WriteString(basePersona)
	}
	fmt.Fprintf(&b, "\n\nLivello QCER dello studente: %s. %s", s.Level, levelGuidance[s.Level])
	fmt.Fprintf(&b, "\nRegistro: %s. %s", s.Register, registerGuidance[s.Register])
	if sc := strings.TrimSpace(s.Scenario); sc != "" {
		fmt.Fprintf(&b, "\n\nScenario: %s", sc)
	}
	if ctx := strings.TrimSpace(s.Context); ctx != "" {
		fmt.Fprintf(&b, "\n\nTesto di riferimento per la discussione:\n%s", ctx)
	}
	return b.String()
}
