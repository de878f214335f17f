// Package rerr defines the error taxonomy shared by the registry stores.
//
// Callers are expected to match with errors.Is; every store wraps these
// sentinels with context about the object the operation touched.
package rerr

import "errors"

var (
	// ErrUnauthorized is returned when the acting controller does not satisfy
	// the policy governing the object.
	ErrUnauthorized = errors.New("controller is not authorized")

	// ErrNotFound is returned when a mutation targets an absent object.
	// Lookups do not use it; an absent object reads as nil.
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists is returned when a create operation collides with an
	// existing object. Creates are never silently re-applied.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrForbidden is returned when an operation violates an object invariant,
	// such as unrevoking an id in an add-only registry.
	ErrForbidden = errors.New("operation forbidden by object invariant")

	// ErrInvalidDelta is returned when an accumulator update mixes shapes or
	// carries additions or removals without witness update info.
	ErrInvalidDelta = errors.New("invalid accumulator update")

	// ErrDanglingReference is returned when a cross-object reference resolves
	// to a removed or absent target.
	ErrDanglingReference = errors.New("reference target has been removed")

	// ErrNoStatus is returned when a credential carries no registry-qualified
	// credentialStatus entry. Callers that do not require revocability should
	// treat it as "not revocable" rather than a failure.
	ErrNoStatus = errors.New("credential has no qualifying credentialStatus")
)
