package content

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const maxChatNameLength = 64

var (
	policy = bluemonday.UGCPolicy()
	md     = goldmark.New()
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// RenderMarkdown converts message markdown to HTML and sanitizes the result.
func RenderMarkdown(input string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

// ValidateChatName checks that a chat name is non-empty after trimming and
// within the length limit.
func ValidateChatName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("chat name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxChatNameLength {
		return errors.New("chat name is too long")
	}
	return nil
}
