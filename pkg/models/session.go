package models

import "time"

// BrowserStatus reports whether the shared browser session is live
type BrowserStatus string

const (
	BrowserInitialized    BrowserStatus = "initialized"
	BrowserNotInitialized BrowserStatus = "not initialized"
)

// StatusOf maps the initialized flag to its BrowserStatus
func StatusOf(initialized bool) BrowserStatus {
	if initialized {
		return BrowserInitialized
	}
	return BrowserNotInitialized
}

// SessionInfo is a point-in-time view of the shared browser session
type SessionInfo struct {
	Initialized  bool       `json:"initialized"`
	Driver       string     `json:"driver"`
	LaunchedAt   *time.Time `json:"launchedAt,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	IdleTimeout  string     `json:"idleTimeout"`
	DebugURL     string     `json:"-"`
}
