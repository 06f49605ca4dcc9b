package events

import (
	"strings"

	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// GlobalPattern subscribes to every topic.
const GlobalPattern = "*"

// IsSeparator reports whether c may terminate a wildcard prefix.
func IsSeparator(c byte) bool {
	return c == '-' || c == ':' || c == '.'
}

func validTopicByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == ':', c == '-':
		return true
	}
	return false
}

// ValidateTopic checks an exact topic such as "agent-7" or "system".
func ValidateTopic(topic string) error {
	if topic == "" {
		return &errors.ValidationError{Field: "topic", Message: "topic is required"}
	}
	if len(topic) > constants.MaxTopicLength {
		return &errors.ValidationError{Field: "topic", Value: len(topic), Message: "topic is too long"}
	}
	for i := 0; i < len(topic); i++ {
		if !validTopicByte(topic[i]) {
			return &errors.ValidationError{Field: "topic", Value: topic, Message: "topic contains an invalid character"}
		}
	}
	return nil
}

// ValidatePattern checks a subscription pattern: an exact topic, the global
// pattern "*", or a prefix wildcard such as "agent-*" whose prefix ends in a
// separator.
func ValidatePattern(pattern string) error {
	if pattern == GlobalPattern {
		return nil
	}
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		if err := ValidateTopic(pattern); err != nil {
			return errors.NewSubscriptionError(pattern, err.Error())
		}
		return nil
	}
	if len(prefix) < 2 || !IsSeparator(prefix[len(prefix)-1]) {
		return errors.NewSubscriptionError(pattern, "wildcard must follow a separator")
	}
	if err := ValidateTopic(prefix); err != nil {
		return errors.NewSubscriptionError(pattern, err.Error())
	}
	return nil
}

// IsWildcard reports whether pattern matches more than one topic.
func IsWildcard(pattern string) bool {
	return strings.HasSuffix(pattern, "*")
}

// Match reports whether topic is selected by pattern.
func Match(pattern, topic string) bool {
	if pattern == GlobalPattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// WildcardsFor returns the wildcard patterns that can match topic, the global
// pattern first and then each separator-terminated prefix from shortest to
// longest.
func WildcardsFor(topic string) []string {
	out := []string{GlobalPattern}
	for i := 1; i < len(topic); i++ {
		if IsSeparator(topic[i]) {
			out = append(out, topic[:i+1]+"*")
		}
	}
	return out
}
