package lifecycle

import "errors"

// #region errors

// Sentinel errors for the controller's taxonomy. All are returned wrapped
// with component context; check with errors.Is.
var (
	// ErrUnknownComponent: operation referenced an unregistered name.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrAlreadyRegistered: register called with a name already in use.
	ErrAlreadyRegistered = errors.New("component already registered")

	// ErrCycleDetected: register would introduce a dependency cycle.
	// Nothing is mutated.
	ErrCycleDetected = errors.New("dependency cycle rejected")

	// ErrDependencyNotReady: start/resume attempted while a required
	// dependency is not Active. The component moves to Error.
	ErrDependencyNotReady = errors.New("dependency not ready")

	// ErrInvalidTransition: the operation is not legal from the component's
	// current state. State unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrHookFailure: a registered hook returned an error.
	ErrHookFailure = errors.New("hook failure")

	// ErrHookTimeout: a hook did not return within the configured bound.
	// Treated like a failure but tagged distinctly for diagnostics.
	ErrHookTimeout = errors.New("hook timeout")
)

// #endregion errors
