package liveness

import (
	"math"
	"time"
)

const defaultReason = "liveness evaluation in progress"

// Judgment is what a provider returns for one frame.
type Judgment struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Detail     string  `json:"detail"`
	// Spoof marks a hard mismatch such as a replay or mask signature.
	Spoof bool `json:"spoof,omitempty"`
}

// Progress reports how far through the gesture sequence a session is.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Verdict is the message written to the streaming channel.
// The first message of a session also carries the challenge description
// (Type, Gestures, Instructions, Deadline); later messages leave them empty.
type Verdict struct {
	Type         string    `json:"type,omitempty"`
	IsLive       bool      `json:"is_live"`
	Confidence   float64   `json:"confidence"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    string    `json:"timestamp,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	State        State     `json:"state,omitempty"`
	Gesture      Gesture   `json:"gesture,omitempty"`
	Instruction  string    `json:"instruction,omitempty"`
	Progress     *Progress `json:"progress,omitempty"`
	Gestures     []Gesture `json:"gestures,omitempty"`
	Instructions []string  `json:"instructions,omitempty"`
	Deadline     string    `json:"deadline,omitempty"`
	Final        bool      `json:"final"`
}

// NewVerdict builds a verdict with clamped confidence and an RFC 3339 timestamp.
func NewVerdict(isLive bool, confidence float64, reason string, at time.Time) Verdict {
	if reason == "" {
		reason = defaultReason
	}
	if at.IsZero() {
		at = time.Now()
	}
	return Verdict{
		IsLive:     isLive,
		Confidence: Clamp(confidence),
		Reason:     reason,
		Timestamp:  at.UTC().Format(time.RFC3339Nano),
	}
}

// Normalize fills optional fields a peer may have omitted.
func (v Verdict) Normalize() Verdict {
	v.Confidence = Clamp(v.Confidence)
	if v.Reason == "" {
		v.Reason = defaultReason
	}
	if v.Timestamp == "" {
		v.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Time parses the verdict timestamp.
func (v Verdict) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v.Timestamp)
}

// Clamp bounds a confidence to [0,1]; NaN becomes 0.
func Clamp(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
