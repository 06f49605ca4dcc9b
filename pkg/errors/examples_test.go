package errors_test

import (
	"fmt"

	"github.com/agentstation/swarmcast/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := errors.NewNotFoundError("session", "7b1f")

	if errors.IsNotFound(err) {
		fmt.Println("Session not found")
	}

	// Output: Session not found
}

// Example_malformedEvent demonstrates classifying a rejected producer event.
func Example_malformedEvent() {
	err := fmt.Errorf("emit: %w", errors.NewMalformedEventError("", "", "topic is required", nil))

	switch {
	case errors.IsMalformedEvent(err):
		fmt.Println("rejected at emit")
	case errors.IsTransport(err):
		fmt.Println("connection failure")
	}

	// Output: rejected at emit
}
