package usecases

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func ValidateUUID(rawUUID string) bool {
	_, err := uuid.Parse(rawUUID)
	return err == nil
}

func requireUUID(name, raw string) error {
	if !ValidateUUID(raw) {
		return fmt.Errorf("%w: %s must be a valid uuid", ErrInvalidInput, name)
	}
	return nil
}

// optionalText trims s and returns nil when nothing is left.
func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// Clock returns the current time. Timestamps are kept at microsecond
// precision so they compare equal after a round trip through Postgres.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
