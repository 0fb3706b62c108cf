package similarity

// Status is the approval outcome of a strategy or of the whole evaluation.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusNotApproved Status = "not approved"
)

// StatusFor maps a boolean decision to a Status.
func StatusFor(approved bool) Status {
	if approved {
		return StatusApproved
	}
	return StatusNotApproved
}

// StrategyResult is the common shape every strategy reports.
type StrategyResult struct {
	Similarity float64 `json:"similarity"`
	Status     Status  `json:"status"`
	Available  bool    `json:"available"`
	Error      string  `json:"error,omitempty"`
}

// Approved reports whether an available strategy approved the pair.
func (r StrategyResult) Approved() bool {
	return r.Available && r.Status == StatusApproved
}

// Unavailable is the sentinel reported for a strategy that failed.
func Unavailable(reason string) StrategyResult {
	return StrategyResult{
		Similarity: 0,
		Status:     StatusNotApproved,
		Available:  false,
		Error:      reason,
	}
}

// ModelResult carries the generative model's extra fields.
type ModelResult struct {
	StrategyResult
	SamePerson  bool   `json:"same_person"`
	Explanation string `json:"explanation"`
}

// FaceAPIResult carries the face API's extra fields.
type FaceAPIResult struct {
	StrategyResult
	IsIdentical bool    `json:"is_identical"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// Evaluation is the HTTP response for an image pair.
type Evaluation struct {
	Similarity float64        `json:"similarity"`
	Status     Status         `json:"status"`
	Embeddings StrategyResult `json:"embeddings"`
	Model      ModelResult    `json:"model"`
	FaceAPI    FaceAPIResult  `json:"face_api"`
}

// AvailableCount returns how many strategies produced a usable result.
func (e Evaluation) AvailableCount() int {
	n := 0
	for _, r := range []StrategyResult{e.Embeddings, e.Model.StrategyResult, e.FaceAPI.StrategyResult} {
		if r.Available {
			n++
		}
	}
	return n
}
