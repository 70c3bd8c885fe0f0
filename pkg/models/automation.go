package models

// TimestampLayout is the ISO-8601 form used for response timestamps
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// AutomationRequest is the payload for running a prompt
type AutomationRequest struct {
	Prompt string `json:"prompt"`
}

// AutomationResponse is returned when a prompt produced a reply
type AutomationResponse struct {
	Success   bool   `json:"success"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx reply. Success is only set by
// the automation endpoint.
type ErrorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Endpoints lists the routes advertised by the status endpoint
type Endpoints struct {
	Automation   string `json:"automation"`
	CloseBrowser string `json:"closeBrowser"`
}

// StatusResponse is the body of GET /
type StatusResponse struct {
	Status        string        `json:"status"`
	Message       string        `json:"message"`
	BrowserStatus BrowserStatus `json:"browserStatus"`
	Endpoints     Endpoints     `json:"endpoints"`
}

// CloseResponse acknowledges a close-browser call
type CloseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
