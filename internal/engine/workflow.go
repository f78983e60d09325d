package engine

import (
	"errors"
	"fmt"
)

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// ErrProjectAlreadyCommitted is returned when a bid acceptance loses the race:
// the project left the open state between the caller's read and the commit.
var ErrProjectAlreadyCommitted = errors.New("project already committed to another bid")

// ErrDuplicateBid is returned when a contractor already has a live bid on the project.
var ErrDuplicateBid = errors.New("contractor already has an active bid on this project")

func ensureProjectTransition(oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return InvalidTransitionError{Entity: "project", From: oldStatus, To: newStatus}
	}
	switch oldStatus {
	case "draft":
		if newStatus == "open" {
			return nil
		}
	case "open":
		if newStatus == "in_progress" || newStatus == "cancelled" {
			return nil
		}
	case "in_progress":
		if newStatus == "completed" || newStatus == "cancelled" {
			return nil
		}
	case "completed", "cancelled":
		// absorbing
	}
	return InvalidTransitionError{Entity: "project", From: oldStatus, To: newStatus}
}

func ensureBidTransition(oldStatus, newStatus string) error {
	if oldStatus == "pending" {
		switch newStatus {
		case "accepted", "rejected", "withdrawn":
			return nil
		}
	}
	return InvalidTransitionError{Entity: "bid", From: oldStatus, To: newStatus}
}

func ensureMilestoneTransition(oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return InvalidTransitionError{Entity: "milestone", From: oldStatus, To: newStatus}
	}
	switch oldStatus {
	case "pending":
		if newStatus == "in_progress" || newStatus == "blocked" {
			return nil
		}
	case "in_progress":
		if newStatus == "completed" || newStatus == "blocked" {
			return nil
		}
	case "blocked":
		if newStatus == "in_progress" {
			return nil
		}
	case "completed":
		// absorbing
	}
	return InvalidTransitionError{Entity: "milestone", From: oldStatus, To: newStatus}
}
