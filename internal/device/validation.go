package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation constants.
const (
	maxIDLength          = 128
	maxDisplayNameLength = 100
	maxDialectLength     = 64
)

// topicReserved are characters that cannot appear in a scope or device ID
// because both are used verbatim as topic levels.
const topicReserved = "/+#"

// ValidateDevice checks that a device can be stored and addressed.
// It returns an error wrapping ErrInvalidDevice describing the first problem.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := validateSegment("scope_id", d.ScopeID); err != nil {
		return err
	}
	if err := validateSegment("id", d.ID); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.DisplayName) > maxDisplayNameLength {
		return fmt.Errorf("%w: display_name exceeds %d characters", ErrInvalidDevice, maxDisplayNameLength)
	}
	if len(d.Dialect) > maxDialectLength {
		return fmt.Errorf("%w: dialect exceeds %d characters", ErrInvalidDevice, maxDialectLength)
	}
	if d.Connection != nil {
		if err := ValidateConnection(d.Connection); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConnection checks a connection record.
func ValidateConnection(c *Connection) error {
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}
	return nil
}

func validateSegment(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidDevice, field)
	}
	if len(v) > maxIDLength {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDevice, field, maxIDLength)
	}
	if strings.ContainsAny(v, topicReserved) {
		return fmt.Errorf("%w: %s %q contains one of %q", ErrInvalidDevice, field, v, topicReserved)
	}
	return nil
}
