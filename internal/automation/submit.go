package automation

import "fmt"

// Submitter types a prompt into the chat input and sends it
type Submitter struct {
	selectors Selectors
}

// NewSubmitter creates a submitter for the given selectors
func NewSubmitter(selectors Selectors) *Submitter {
	return &Submitter{selectors: selectors}
}

// Submit fills the prompt box and clicks send
func (s *Submitter) Submit(page Page, prompt string) error {
	sel := s.selectors

	if err := page.FillByRole(sel.PromptRole, sel.PromptLabel, prompt); err != nil {
		return fmt.Errorf("%w: prompt input %s %q: %w", ErrElementNotFound, sel.PromptRole, sel.PromptLabel, err)
	}

	if err := page.ClickByRole(sel.SubmitRole, sel.SubmitLabel); err != nil {
		return fmt.Errorf("%w: submit control %s %q: %w", ErrElementNotFound, sel.SubmitRole, sel.SubmitLabel, err)
	}

	return nil
}
