package graphdock

import "errors"

// Shared error kinds. Callers classify failures with errors.Is; the
// raising package wraps these with environment and step context.
var (
	// ErrPortExhausted means the bounded port search window was used up
	// without finding a free pair.
	ErrPortExhausted = errors.New("port allocation window exhausted")

	// ErrContainerCreate means the container runtime rejected creation.
	ErrContainerCreate = errors.New("container create failed")

	// ErrAuthMismatch means the instance is reachable but rejects the
	// credential we expected it to hold.
	ErrAuthMismatch = errors.New("authentication mismatch")

	// ErrUnhealthy means the instance failed verification for a reason
	// other than credentials, e.g. the container exited.
	ErrUnhealthy = errors.New("instance unhealthy")

	// ErrTimeout means a bounded wait elapsed before the instance was ready.
	ErrTimeout = errors.New("timed out waiting for instance")

	// ErrVersionIncompatible means an archive failed the version gate
	// against the import target.
	ErrVersionIncompatible = errors.New("snapshot version incompatible")

	// ErrStreamFailed means an archive transfer or packaging stream broke.
	ErrStreamFailed = errors.New("snapshot stream failed")

	// ErrResourceBusy means the container required for an operation is not
	// running or cannot accept the operation right now.
	ErrResourceBusy = errors.New("instance not accepting operations")
)
