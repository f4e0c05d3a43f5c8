package custom_errors

import (
	"fmt"
	"strings"
)

// DuplicateConflictError is returned when a request reuses the idempotency key
// of an existing job but carries different attributes. It indicates a producer
// bug and is never merged into the stored job.
type DuplicateConflictError struct {
	GroupID string   `json:"group_id"`
	Index   int      `json:"index"`
	Fields  []string `json:"fields"`
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("duplicate conflict for job %s/%d: %s differ from stored job",
		e.GroupID, e.Index, strings.Join(e.Fields, ", "))
}
