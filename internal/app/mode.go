package app

import "fmt"

// Mode selects the representation a region query renders.
type Mode int

const (
	ModeSummary Mode = iota
	ModeNote
)

func (m Mode) String() string {
	switch m {
	case ModeSummary:
		return "summary"
	case ModeNote:
		return "note"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "summary", "note" and the empty string (summary).
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case "", "summary":
		return ModeSummary, nil
	case "note":
		return ModeNote, nil
	}
	return ModeSummary, fmt.Errorf("unknown mode %q", raw)
}
