package automation

import "errors"

var (
	// ErrInvalidRule is returned when a rule definition fails validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRuleNotFound is returned when a rule id is unknown.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrMessagingBlocked is returned by send-notification when the messaging guard blocks the subject.
	ErrMessagingBlocked = errors.New("messaging blocked")

	// ErrActionFailed wraps the downstream rejection of an action.
	ErrActionFailed = errors.New("action failed")
)
