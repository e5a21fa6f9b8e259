// Package table reads and writes the status-tagged CSV tables that carry
// pipeline progress between stages.
package table

import (
	"fmt"
	"strings"
)

// Status is the processing state of a table row. Rows move from
// StatusPending to one of the terminal states and never back, except through
// an explicit Reset.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusNone    Status = "none" // fetched fine, nothing usable in it
	StatusFailed  Status = "failed"
)

// legacyStatus maps the markers written by older tooling.
var legacyStatus = map[string]Status{
	"no":   StatusPending,
	"yes":  StatusDone,
	"fail": StatusFailed,
}

// ParseStatus parses a status column value.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Status(s) {
	case StatusPending, StatusDone, StatusNone, StatusFailed:
		return Status(s), nil
	}
	if status, ok := legacyStatus[s]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether the row needs no further processing.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Counts tallies rows per status.
type Counts map[Status]int

// Total returns the number of rows counted.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
