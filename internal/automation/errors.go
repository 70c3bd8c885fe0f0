package automation

import "errors"

// Failure classes of an automation call. Callers wrap the underlying cause
// with fmt.Errorf("%w: %w", ErrX, cause) and classify with errors.Is.
var (
	ErrSessionInit     = errors.New("browser session initialization failed")
	ErrElementNotFound = errors.New("page element not found")
	ErrResponseTimeout = errors.New("timed out waiting for response")
	ErrClipboardRead   = errors.New("clipboard read failed")
	ErrShutdownCleanup = errors.New("shutdown cleanup failed")
)
