// Package automationtest provides in-memory automation.Page implementations for tests.
package automationtest

import (
	"fmt"
	"strings"
	"sync"
)

// Page is a scriptable automation.Page. Nil hooks succeed with zero values.
type Page struct {
	GotoFunc        func(url string) error
	FillByRoleFunc  func(role, name, value string) error
	ClickByRoleFunc func(role, name string) error
	CountFunc       func(selector string) (int, error)
	ClickFunc       func(selector string) error
	ClickNthFunc    func(selector string, index int) error
	EvaluateFunc    func(expression string, arg any) (any, error)

	mu    sync.Mutex
	calls []string
}

// Calls returns the recorded method calls in order
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Page) record(format string, args ...any) {
	p.mu.Lock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *Page) Goto(url string) error {
	p.record("goto %s", url)
	if p.GotoFunc != nil {
		return p.GotoFunc(url)
	}
	return nil
}

func (p *Page) FillByRole(role, name, value string) error {
	p.record("fill %s %s", role, name)
	if p.FillByRoleFunc != nil {
		return p.FillByRoleFunc(role, name, value)
	}
	return nil
}

func (p *Page) ClickByRole(role, name string) error {
	p.record("click %s %s", role, name)
	if p.ClickByRoleFunc != nil {
		return p.ClickByRoleFunc(role, name)
	}
	return nil
}

func (p *Page) Count(selector string) (int, error) {
	p.record("count %s", selector)
	if p.CountFunc != nil {
		return p.CountFunc(selector)
	}
	return 0, nil
}

func (p *Page) Click(selector string) error {
	p.record("click %s", selector)
	if p.ClickFunc != nil {
		return p.ClickFunc(selector)
	}
	return nil
}

func (p *Page) ClickNth(selector string, index int) error {
	p.record("click %s #%d", selector, index)
	if p.ClickNthFunc != nil {
		return p.ClickNthFunc(selector, index)
	}
	return nil
}

func (p *Page) Evaluate(expression string, arg any) (any, error) {
	p.record("evaluate")
	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(expression, arg)
	}
	return nil, nil
}

// ChatPage simulates a chat UI that renders one new action menu per submitted
// prompt and copies Reply to the clipboard.
type ChatPage struct {
	Page

	mu      sync.Mutex
	menus   int
	Reply   string
	prompts []string
}

// NewChatPage returns a working chat page that answers every prompt with reply
func NewChatPage(reply string) *ChatPage {
	c := &ChatPage{Reply: reply}
	c.FillByRoleFunc = func(_, _, value string) error {
		c.mu.Lock()
		c.prompts = append(c.prompts, value)
		c.mu.Unlock()
		return nil
	}
	c.ClickByRoleFunc = func(role, _ string) error {
		if role == "button" {
			c.mu.Lock()
			c.menus++
			c.mu.Unlock()
		}
		return nil
	}
	c.CountFunc = func(string) (int, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.menus, nil
	}
	c.EvaluateFunc = func(expression string, _ any) (any, error) {
		switch {
		case strings.Contains(expression, "MutationObserver"):
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.menus, nil
		case strings.Contains(expression, "clipboard.readText"):
			return c.Reply, nil
		default:
			return nil, nil
		}
	}
	return c
}

// Prompts returns every prompt filled into the page
func (c *ChatPage) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
