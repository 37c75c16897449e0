package store

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by writes when the session is not authenticated.
var ErrUnauthorized = errors.New("user is not authenticated")

// CorruptionError reports a partition that could not be decrypted or parsed.
type CorruptionError struct {
	Model string
	Date  string
	Path  string

	// Err is cipher.ErrDecrypt, a codec error or a JSON error.
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt partition %s (model=%s, date=%s): %v", e.Path, e.Model, e.Date, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// IsCorruptionError returns true if err is or wraps a CorruptionError.
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// CorruptionPolicy selects how reads treat a CorruptionError.
type CorruptionPolicy int

const (
	// SkipPartition logs the error and treats the partition as empty.
	SkipPartition CorruptionPolicy = iota

	// FailOnCorruption returns the error to the caller.
	FailOnCorruption
)

func (p CorruptionPolicy) String() string {
	switch p {
	case SkipPartition:
		return "skip"
	case FailOnCorruption:
		return "fail"
	default:
		return fmt.Sprintf("CorruptionPolicy(%d)", int(p))
	}
}

// ParsePolicy maps "skip" and "fail" to a CorruptionPolicy.
func ParsePolicy(name string) (CorruptionPolicy, error) {
	switch name {
	case "", "skip":
		return SkipPartition, nil
	case "fail":
		return FailOnCorruption, nil
	default:
		return SkipPartition, fmt.Errorf("unknown corruption policy %q", name)
	}
}
