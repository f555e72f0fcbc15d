package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

// MaxMessageContentLength bounds a single user message.
const MaxMessageContentLength = 4000

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateDifficulty validates a difficulty tag; empty is allowed and
// defaulted downstream.
func ValidateDifficulty(difficulty string) error {
	switch difficulty {
	case "", "basic", "intermediate", "advanced":
		return nil
	}
	return errors.New("difficulty must be basic, intermediate or advanced")
}

// ValidateLanguage validates a language tag; empty is allowed.
func ValidateLanguage(language string) error {
	switch language {
	case "", "en", "zh":
		return nil
	}
	return errors.New("language must be en or zh")
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
