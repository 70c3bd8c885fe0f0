package automation

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// ClipboardReader returns the text most recently copied by the page
type ClipboardReader interface {
	ReadClipboard(page Page) (string, error)
}

// BrowserClipboard reads through navigator.clipboard inside the page.
// The context must have been granted clipboard-read.
type BrowserClipboard struct{}

// ReadClipboard evaluates navigator.clipboard.readText()
func (BrowserClipboard) ReadClipboard(page Page) (string, error) {
	v, err := page.Evaluate(`() => navigator.clipboard.readText()`, nil)
	if err != nil {
		return "", err
	}
	text, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("clipboard returned %T", v)
	}
	return text, nil
}

// SystemClipboard reads the host OS clipboard. Only useful for headed
// browsers sharing the desktop clipboard.
type SystemClipboard struct {
	read func() (string, error)
}

// NewSystemClipboard creates a reader backed by the OS clipboard
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{read: readSystemClipboard}
}

func readSystemClipboard() (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("no system clipboard utility available")
	}
	return clipboard.ReadAll()
}

// ReadClipboard ignores page and reads the OS clipboard
func (c *SystemClipboard) ReadClipboard(Page) (string, error) {
	return c.read()
}

// Extractor copies the latest reply through the page's action menu
type Extractor struct {
	selectors Selectors
	reader    ClipboardReader
}

// NewExtractor creates an extractor reading copied text through reader
func NewExtractor(selectors Selectors, reader ClipboardReader) *Extractor {
	return &Extractor{selectors: selectors, reader: reader}
}

// Extract opens the action menu at index, clicks copy and reads the clipboard
func (e *Extractor) Extract(page Page, index int) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("%w: no action menu on page", ErrElementNotFound)
	}

	if err := page.ClickNth(e.selectors.ActionMenu, index); err != nil {
		return "", fmt.Errorf("%w: action menu %d: %w", ErrElementNotFound, index, err)
	}

	if err := page.Click(e.selectors.CopyButton); err != nil {
		return "", fmt.Errorf("%w: copy button: %w", ErrElementNotFound, err)
	}

	text, err := e.reader.ReadClipboard(page)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClipboardRead, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: clipboard is empty", ErrClipboardRead)
	}

	return text, nil
}
