package models

import "encoding/json"

// OutcomeKind identifies which terminal state a submission reached.
type OutcomeKind string

const (
	OutcomeValidationError  OutcomeKind = "validation_error"
	OutcomeDemo             OutcomeKind = "demo"
	OutcomeLiveSuccess      OutcomeKind = "live_success"
	OutcomeLiveError        OutcomeKind = "live_error"
	OutcomeTransportFailure OutcomeKind = "transport_failure"
)

// Outcome is everything the output area needs to render one submission.
// Payload is one of *DemoPayload, ServicePayload or *RawFallback.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code,omitempty"`
	Payload    any         `json:"payload,omitempty"`
	Info       string      `json:"info,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// PayloadJSON returns the payload as indented JSON, or "" when there is none.
func (o *Outcome) PayloadJSON() string {
	if o == nil || o.Payload == nil {
		return ""
	}
	out, err := json.MarshalIndent(o.Payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}
