package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page adapts a Playwright page to automation.Page
type Page struct {
	page              playwright.Page
	actionTimeout     float64
	navigationTimeout float64
}

// NewPage wraps page, applying timeouts to every action and navigation
func NewPage(page playwright.Page, actionTimeout, navigationTimeout time.Duration) *Page {
	p := &Page{
		page:              page,
		actionTimeout:     float64(actionTimeout.Milliseconds()),
		navigationTimeout: float64(navigationTimeout.Milliseconds()),
	}
	page.SetDefaultTimeout(p.actionTimeout)
	page.SetDefaultNavigationTimeout(p.navigationTimeout)
	return p
}

func (p *Page) Goto(url string) error {
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &p.navigationTimeout,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) FillByRole(role, name, value string) error {
	return p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: name}).
		Fill(value, playwright.LocatorFillOptions{Timeout: &p.actionTimeout})
}

func (p *Page) ClickByRole(role, name string) error {
	return p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: name}).
		Click(playwright.LocatorClickOptions{Timeout: &p.actionTimeout})
}

func (p *Page) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *Page) Click(selector string) error {
	return p.page.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: &p.actionTimeout})
}

func (p *Page) ClickNth(selector string, index int) error {
	return p.page.Locator(selector).Nth(index).Click(playwright.LocatorClickOptions{Timeout: &p.actionTimeout})
}

func (p *Page) Evaluate(expression string, arg any) (any, error) {
	if arg == nil {
		return p.page.Evaluate(expression)
	}
	return p.page.Evaluate(expression, arg)
}
