package bridge

import "errors"

// dependencyUnavailableError signals a missing engine dependency (e.g. a
// binary built without llama.cpp) so callers can report 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing engine dependency.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}

// errNotLoaded is returned by bridges asked to generate without a model.
var errNotLoaded = errors.New("engine has no model loaded")
