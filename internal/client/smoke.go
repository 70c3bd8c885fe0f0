package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// SamplePrompts are sent by RunSamples
var SamplePrompts = []string{
	"こんにちは",
	"今日の天気はどうですか？",
	"JavaScriptの基本的な使い方を教えてください",
}

var rule = strings.Repeat("─", 80)

// Report prints the outcome of one automation call
func Report(w io.Writer, res *Result) {
	if res.OK() {
		fmt.Fprintln(w, "✅ 成功:")
		fmt.Fprintf(w, "📝 プロンプト: %s\n", res.Prompt)
		fmt.Fprintf(w, "🤖 Gemini回答: %s\n", res.Response)
		fmt.Fprintf(w, "⏰ 実行時刻: %s\n", res.Timestamp)
	} else {
		details := res.Details
		if details == "" {
			details = "なし"
		}
		fmt.Fprintln(w, "❌ エラー:")
		fmt.Fprintf(w, "🚫 ステータス: %d\n", res.StatusCode)
		fmt.Fprintf(w, "🏷  コード: %s\n", res.Error)
		fmt.Fprintf(w, "📄 メッセージ: %s\n", res.Message)
		fmt.Fprintf(w, "🔍 詳細: %s\n", details)
	}
	fmt.Fprintln(w, rule)
}

// Probe sends one prompt and reports the outcome. Network failures are reported, not returned.
func (c *Client) Probe(ctx context.Context, w io.Writer, prompt any) *Result {
	fmt.Fprintf(w, "\n🔄 テスト実行: %s\n", describe(prompt))
	fmt.Fprintf(w, "📡 送信先: %s/api/gemini-automation\n", c.baseURL)

	res, err := c.Automate(ctx, prompt)
	if err != nil {
		fmt.Fprintf(w, "❌ ネットワークエラー: %v\n", err)
		fmt.Fprintln(w, rule)
		return nil
	}

	Report(w, res)
	return res
}

// RunSamples sends every sample prompt, pausing between calls. It returns
// how many calls failed.
func (c *Client) RunSamples(ctx context.Context, w io.Writer, prompts []string, pause time.Duration) int {
	fmt.Fprintln(w, "🚀 Gemini API テスト開始")
	fmt.Fprintf(w, "🌐 ベースURL: %s\n", c.baseURL)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	failed := 0
	for i, prompt := range prompts {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return failed + len(prompts) - i
			case <-time.After(pause):
			}
		}
		if res := c.Probe(ctx, w, prompt); res == nil || !res.OK() {
			failed++
		}
	}

	fmt.Fprintln(w, "✨ 全テスト完了")
	return failed
}

// ValidationCase is one request the server must reject
type ValidationCase struct {
	Name   string
	Prompt any
	Code   string
}

// ValidationCases are sent by RunValidation
var ValidationCases = []ValidationCase{
	{Name: "empty", Prompt: "", Code: "Invalid prompt"},
	{Name: "too long", Prompt: strings.Repeat("あ", 1001), Code: "Prompt too long"},
	{Name: "number", Prompt: 123, Code: "Invalid prompt"},
}

// RunValidation sends each validation case and returns how many were not
// rejected with the expected code
func (c *Client) RunValidation(ctx context.Context, w io.Writer) int {
	fmt.Fprintln(w, "\n🔍 バリデーションテスト開始")

	mismatched := 0
	for _, tc := range ValidationCases {
		res := c.Probe(ctx, w, tc.Prompt)
		if res == nil || res.StatusCode != 400 || res.Error != tc.Code {
			fmt.Fprintf(w, "⚠️  %s: expected 400 %q\n", tc.Name, tc.Code)
			mismatched++
		}
	}
	return mismatched
}

func describe(prompt any) string {
	s, ok := prompt.(string)
	if !ok {
		return fmt.Sprintf("%v (%T)", prompt, prompt)
	}
	if n := len([]rune(s)); n > 40 {
		return fmt.Sprintf("%q… (%d文字)", string([]rune(s)[:40]), n)
	}
	return fmt.Sprintf("%q", s)
}
