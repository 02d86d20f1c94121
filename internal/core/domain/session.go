package domain

// Phase is the position of a prediction session in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCapturing  Phase = "capturing"
	PhasePredicting Phase = "predicting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Busy reports whether a trigger is in flight.
func (p Phase) Busy() bool {
	return p == PhaseCapturing || p == PhasePredicting
}

// SessionState is a snapshot of the session. Result is set only when Phase is
// PhaseSucceeded; ErrorKind and Message are set only when Phase is PhaseFailed.
type SessionState struct {
	Phase     Phase             `json:"phase"`
	Result    *PredictionResult `json:"result,omitempty"`
	ErrorKind ErrorKind         `json:"error_kind,omitempty"`
	Message   string            `json:"message,omitempty"`
	// Attempt counts triggers accepted by the session.
	Attempt uint64 `json:"attempt"`
}

// Summary renders the state the way the live screen shows it.
func (s SessionState) Summary() string {
	switch s.Phase {
	case PhaseIdle:
		return "Ready"
	case PhaseCapturing:
		return "Capturing..."
	case PhasePredicting:
		return "Predicting..."
	case PhaseSucceeded:
		if s.Result == nil {
			return "Succeeded"
		}
		return s.Result.Gesture + " (" + FormatConfidence(s.Result.Confidence) + ")"
	case PhaseFailed:
		return "Error: " + s.Message
	default:
		return string(s.Phase)
	}
}
