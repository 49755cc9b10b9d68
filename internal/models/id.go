package models

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed ULID. ulid.Make shares one monotonic entropy
// source across calls, so ids from the same millisecond still sort.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, ulid.Make().String())
}
