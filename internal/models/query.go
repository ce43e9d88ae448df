package models

import "encoding/json"

// Submission carries the five form fields exactly as the user entered them.
type Submission struct {
	EndpointURL string `json:"endpoint_url"`
	DemoMode    bool   `json:"demo_mode"`
	AccessKey   string `json:"access_key"`
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
}

// QueryRequest is the body sent to the remote service.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// ConnectionConfig describes where and how a QueryRequest is dispatched.
type ConnectionConfig struct {
	EndpointURL string `json:"endpoint_url"`
	AccessKey   string `json:"-"`
	DemoMode    bool   `json:"demo_mode"`
}

type DemoResult struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// DemoPayload is the canned response rendered when no live call is made.
type DemoPayload struct {
	Query   string       `json:"query"`
	Results []DemoResult `json:"results"`
	Note    string       `json:"note"`
}

// RawFallback represents a remote body that is not valid JSON.
type RawFallback struct {
	StatusCode int    `json:"status_code"`
	Text       string `json:"text"`
}

// ServicePayload is the remote JSON body, passed through untouched.
type ServicePayload = json.RawMessage

type HealthResponse struct {
	Status string `json:"status"`
}
