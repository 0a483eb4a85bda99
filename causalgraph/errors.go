package causalgraph

import "errors"

// Sentinel error kinds per the engine's error-handling design. Wrap with
// fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is.
var (
	// ErrNotFound is returned when a public or local version lookup fails.
	ErrNotFound = errors.New("causalgraph: not found")

	// ErrInvariantViolation signals internal consistency failure — a bug in
	// this package, never expected to fire in normal operation.
	ErrInvariantViolation = errors.New("causalgraph: invariant violation")

	// ErrAlreadyExists is returned when an insertion would overlap an
	// existing span in one of the RLE indices.
	ErrAlreadyExists = errors.New("causalgraph: already exists")

	// ErrInvalidArgument is returned for malformed caller input, such as
	// comparing a version against itself or adding an empty seq range. The
	// span truncate methods do not check their offset and never return it.
	ErrInvalidArgument = errors.New("causalgraph: invalid argument")
)
