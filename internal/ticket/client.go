// Package ticket finds issue-tracker references in text and checks them against the tracker.
package ticket

import (
	"context"
	"strconv"
	"strings"
)

// Ticket represents a ticket from an issue tracking system.
type Ticket struct {
	Key     string // e.g., "ABC-123"
	Summary string
	Status  string // e.g., "In Progress"
	URL     string
}

// Client defines the interface for fetching tickets.
type Client interface {
	// GetTicket retrieves a ticket by its key.
	GetTicket(ctx context.Context, key string) (*Ticket, error)

	// Name returns the name of the ticket system (e.g., "Jira").
	Name() string
}

// LookupResult is the outcome of validating a reference against the tracker.
// Found is false both when the ticket does not exist and when it could not be checked.
type LookupResult struct {
	Key   string // tracker-confirmed key when Found, the queried reference otherwise
	Found bool
}

// SplitKey separates a reference such as "ABC-123" into its project key and
// issue number. ok is false unless key is exactly one well-formed reference.
func SplitKey(key string) (project string, number int, ok bool) {
	if !keyPattern.MatchString(key) {
		return "", 0, false
	}
	project, digits, _ := strings.Cut(key, "-")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return project, n, true
}
