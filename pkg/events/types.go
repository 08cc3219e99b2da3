// Package events defines the event emitted for every dispatched command and
// the publishers that deliver it.
package events

// Dispatch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// DispatchEvent is emitted once per dispatched command. Code is the remote
// status for failures or the CommandError code for errors.
type DispatchEvent struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Prefix     string `json:"prefix,omitempty"`
	Release    string `json:"release,omitempty"`
	Outcome    string `json:"outcome"`
	Code       string `json:"code,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}
