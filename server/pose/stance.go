package pose

import (
	"errors"
	"fmt"
	"strings"
)

type Stance string

const (
	EnGarde Stance = "en_garde"
	Lunge   Stance = "lunge"
)

var ErrInvalidStance = errors.New("invalid stance")

// ParseStance maps a client supplied pose type onto a Stance. Unknown values
// are rejected instead of falling back to a default.
func ParseStance(s string) (Stance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en_garde", "en-garde", "engarde":
		return EnGarde, nil
	case "lunge":
		return Lunge, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStance, s)
}

func (s Stance) Valid() bool {
	return s == EnGarde || s == Lunge
}

// DisplayName is the human readable name used in captions.
func (s Stance) DisplayName() string {
	switch s {
	case EnGarde:
		return "en-garde"
	case Lunge:
		return "lunge"
	}
	return string(s)
}

// Title is used for report headings.
func (s Stance) Title() string {
	switch s {
	case EnGarde:
		return "En-Garde"
	case Lunge:
		return "Lunge"
	}
	return string(s)
}
