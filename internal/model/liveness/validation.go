package liveness

// ValidationRequest is a batch of still samples posted by the frontend.
type ValidationRequest struct {
	UserID   string            `json:"user_id" validate:"required"`
	Samples  []string          `json:"samples" validate:"dive,required,base64"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ValidationResponse aggregates the per-sample verdicts.
type ValidationResponse struct {
	UserID     string    `json:"user_id"`
	IsLive     bool      `json:"is_live"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	Samples    []Verdict `json:"samples"`
}
