package api

import (
	"encoding/json"
	"unicode/utf16"
)

// MaxPromptLength is the longest accepted prompt, in UTF-16 code units.
// Characters outside the BMP count twice, as they do in a browser.
const MaxPromptLength = 1000

// Validation error codes returned in the error field
const (
	CodeInvalidPrompt = "Invalid prompt"
	CodePromptTooLong = "Prompt too long"
)

// ValidationError rejects a request before any automation runs
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	errInvalidPrompt = &ValidationError{Code: CodeInvalidPrompt, Message: "プロンプトは文字列である必要があります"}
	errPromptTooLong = &ValidationError{Code: CodePromptTooLong, Message: "プロンプトは1000文字以内にしてください"}
)

// ParsePrompt extracts the prompt from a JSON request body. It must be a
// non-empty string of at most MaxPromptLength characters.
func ParsePrompt(body []byte) (string, *ValidationError) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return "", errInvalidPrompt
	}

	raw, ok := payload["prompt"]
	if !ok {
		return "", errInvalidPrompt
	}

	// null decodes to "" and is rejected below with the other empty prompts
	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return "", errInvalidPrompt
	}
	if prompt == "" {
		return "", errInvalidPrompt
	}

	if len(utf16.Encode([]rune(prompt))) > MaxPromptLength {
		return "", errPromptTooLong
	}

	return prompt, nil
}
