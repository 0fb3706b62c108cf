package liveness

import (
	"fmt"
	"strings"
)

// Gesture identifies a physical action the subject is asked to perform.
type Gesture string

const (
	// GestureNone asks the provider for a passive liveness judgment.
	GestureNone      Gesture = ""
	GestureBlink     Gesture = "blink"
	GestureTurnLeft  Gesture = "turnLeft"
	GestureTurnRight Gesture = "turnRight"
	GestureNod       Gesture = "nod"
	GestureSmile     Gesture = "smile"
	GestureOpenMouth Gesture = "openMouth"
)

// DefaultGestures is the vocabulary used when none is configured.
var DefaultGestures = []Gesture{
	GestureBlink,
	GestureTurnLeft,
	GestureTurnRight,
	GestureNod,
	GestureSmile,
	GestureOpenMouth,
}

// ParseGesture resolves an identifier case-insensitively.
func ParseGesture(raw string) (Gesture, error) {
	normalized := strings.TrimSpace(raw)
	for _, g := range DefaultGestures {
		if strings.EqualFold(string(g), normalized) {
			return g, nil
		}
	}
	return GestureNone, fmt.Errorf("unknown gesture %q", raw)
}

// ParseGestureList parses a comma separated vocabulary, dropping duplicates.
func ParseGestureList(raw string) ([]Gesture, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[Gesture]struct{}, len(parts))
	gestures := make([]Gesture, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		g, err := ParseGesture(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		gestures = append(gestures, g)
	}
	return gestures, nil
}
