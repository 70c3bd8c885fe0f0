package automation

import "github.com/shehryarbajwa/gemini-bridge/internal/config"

// Page is the slice of browser page behaviour the automation steps need.
// internal/browser adapts a Playwright page to it.
type Page interface {
	Goto(url string) error
	FillByRole(role, name, value string) error
	ClickByRole(role, name string) error
	Count(selector string) (int, error)
	Click(selector string) error
	ClickNth(selector string, index int) error
	Evaluate(expression string, arg any) (any, error)
}

// Selectors locate every control the automation touches on the chat page
type Selectors struct {
	PromptRole  string
	PromptLabel string
	SubmitRole  string
	SubmitLabel string
	ActionMenu  string
	CopyButton  string
}

// SelectorsFromConfig maps the target section of the config to Selectors
func SelectorsFromConfig(t config.TargetConfig) Selectors {
	return Selectors{
		PromptRole:  t.PromptRole,
		PromptLabel: t.PromptLabel,
		SubmitRole:  t.SubmitRole,
		SubmitLabel: t.SubmitLabel,
		ActionMenu:  t.ActionMenuSelector,
		CopyButton:  t.CopyButtonSelector,
	}
}
