package suggest

import "github.com/pkg/errors"

var (
	// ErrMissingOwner reports a query attempted without an owner scope.
	// This is a contract violation by the caller, not a user-facing error.
	ErrMissingOwner = errors.New("owner id is required")

	// ErrProviderUnavailable reports that a suggestion provider call failed;
	// the affected stream degrades to an empty result.
	ErrProviderUnavailable = errors.New("suggestion provider unavailable")
)
