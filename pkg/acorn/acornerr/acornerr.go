/*
Package acornerr defines the stable error kinds AcornDB exposes to callers.

Components never invent ad-hoc error strings for conditions a caller might
need to branch on; they wrap one of these sentinels with fmt.Errorf's %w so
errors.Is keeps working through multiple layers (trunk -> root chain ->
tree -> branch).
*/
package acornerr

import "errors"

var (
	// ErrNotFound means the id is absent or its envelope has expired.
	ErrNotFound = errors.New("acorn: not found")

	// ErrUnsupported means the trunk does not implement the requested
	// capability (e.g. history on a trunk with no history support).
	ErrUnsupported = errors.New("acorn: unsupported operation")

	// ErrPolicyDenied means a root in the chain rejected the operation.
	ErrPolicyDenied = errors.New("acorn: policy denied")

	// ErrConflictBlocked means a uniqueness or similar invariant was
	// violated during conflict-resolving admission.
	ErrConflictBlocked = errors.New("acorn: conflict blocked")

	// ErrCorruptRecord means replay or read detected an invalid record.
	ErrCorruptRecord = errors.New("acorn: corrupt record")

	// ErrTransientIO means a recoverable I/O failure; caller may retry.
	ErrTransientIO = errors.New("acorn: transient i/o error")

	// ErrPermanentIO means a non-recoverable I/O failure.
	ErrPermanentIO = errors.New("acorn: permanent i/o error")

	// ErrPeerUnavailable means a remote branch could not be reached.
	ErrPeerUnavailable = errors.New("acorn: peer unavailable")

	// ErrMissingID means auto-id extraction failed and no id was supplied.
	ErrMissingID = errors.New("acorn: missing id")
)
