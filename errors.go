package livewire

import "errors"

// Sentinel errors returned by the public API.
var (
	// ErrUnknownModule means a join or render named a module the registry
	// does not hold.
	ErrUnknownModule = errors.New("unknown module")

	// ErrModuleExists means a second factory was registered under a name.
	ErrModuleExists = errors.New("module already registered")

	// ErrTokenInvalid means a join token failed verification.
	ErrTokenInvalid = errors.New("invalid join token")

	// ErrRegionExists means a join reused a region id already owned by a
	// live actor on the same connection.
	ErrRegionExists = errors.New("region already joined")

	// ErrSessionUnknown means a join token referenced an expired or foreign
	// page session.
	ErrSessionUnknown = errors.New("unknown page session")

	// ErrApplicationClosed means the application no longer accepts work.
	ErrApplicationClosed = errors.New("application closed")
)
