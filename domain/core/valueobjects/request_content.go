package valueobjects

import (
	"strings"
	"unicode/utf8"

	pkgerrors "companionlife/pkg/errors"
)

const (
	maxTitleLength  = 200
	maxPromptLength = 4000
	maxHintLength   = 1000
)

// RequestContent is the externally sourced copy of a request.
type RequestContent struct {
	requestType     string
	title           string
	prompt          string
	consequenceHint string
}

// NewRequestContent trims and validates generated copy.
func NewRequestContent(requestType, title, prompt, consequenceHint string) (RequestContent, error) {
	requestType = strings.TrimSpace(requestType)
	title = strings.TrimSpace(title)
	prompt = strings.TrimSpace(prompt)
	consequenceHint = strings.TrimSpace(consequenceHint)

	if requestType == "" {
		return RequestContent{}, pkgerrors.NewValidationError("request type cannot be empty")
	}
	if title == "" {
		return RequestContent{}, pkgerrors.NewValidationError("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return RequestContent{}, pkgerrors.NewValidationError("title exceeds maximum length")
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return RequestContent{}, pkgerrors.NewValidationError("prompt exceeds maximum length")
	}
	if utf8.RuneCountInString(consequenceHint) > maxHintLength {
		return RequestContent{}, pkgerrors.NewValidationError("consequence hint exceeds maximum length")
	}

	return RequestContent{
		requestType:     requestType,
		title:           title,
		prompt:          prompt,
		consequenceHint: consequenceHint,
	}, nil
}

func (c RequestContent) RequestType() string { return c.requestType }
func (c RequestContent) Title() string { return c.title }
func (c RequestContent) Prompt() string { return c.prompt }

// ConsequenceHint returns nil when no hint was supplied.
func (c RequestContent) ConsequenceHint() *string {
	if c.consequenceHint == "" {
		return nil
	}
	h := c.consequenceHint
	return &h
}
