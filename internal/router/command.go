package router

import (
	"encoding/json"

	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

// Action names a command accepted by the router.
type Action string

const (
	ActionStartTest        Action = "startTest"
	ActionGetRecentTests   Action = "getRecentTests"
	ActionOpenDashboard    Action = "openDashboard"
	ActionCompleteTest     Action = "completeTest"
	ActionGetTest          Action = "getTest"
	ActionCancelSimulation Action = "cancelSimulation"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionStartTest,
	ActionGetRecentTests,
	ActionOpenDashboard,
	ActionCompleteTest,
	ActionGetTest,
	ActionCancelSimulation,
}

// Request is a single command. Only the fields relevant to Action are read.
type Request struct {
	Action Action              `json:"action"`
	Config *tracker.TestConfig `json:"config,omitempty"`
	TestID string              `json:"testId,omitempty"`
	Status store.Status        `json:"status,omitempty"`
}

// Response is produced for every request, successful or not.
type Response struct {
	Success bool                `json:"success"`
	Record  *store.TestRecord   `json:"record,omitempty"`
	Tests   []*store.TestRecord `json:"tests,omitempty"`
	URL     string              `json:"url,omitempty"`
	Pending bool                `json:"pending,omitempty"`
	Error   *ErrorPayload       `json:"error,omitempty"`
}

// responseJSON is the wire form of Response. Tests is a pointer so that a
// getRecentTests reply always carries the key, even for an empty list, while
// other replies omit it.
type responseJSON struct {
	Success bool                 `json:"success"`
	Record  *store.TestRecord    `json:"record,omitempty"`
	Tests   *[]*store.TestRecord `json:"tests,omitempty"`
	URL     string               `json:"url,omitempty"`
	Pending bool                 `json:"pending,omitempty"`
	Error   *ErrorPayload        `json:"error,omitempty"`
}

// MarshalJSON writes tests whenever the slice is non-nil.
func (r Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{
		Success: r.Success,
		Record:  r.Record,
		URL:     r.URL,
		Pending: r.Pending,
		Error:   r.Error,
	}
	if r.Tests != nil {
		out.Tests = &r.Tests
	}
	return json.Marshal(out)
}

// ErrorKind classifies a failed command.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindUnknownAction ErrorKind = "unknown_action"
	KindInternal      ErrorKind = "internal"
	KindUnavailable   ErrorKind = "unavailable"
)

// ErrorPayload describes why a command failed.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e *ErrorPayload) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func failure(kind ErrorKind, msg string) Response {
	return Response{Error: &ErrorPayload{Kind: kind, Message: msg}}
}
