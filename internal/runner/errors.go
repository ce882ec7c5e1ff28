package runner

import "errors"

// LoadError reports that the engine failed to load a model. The handle of a
// failed load is never returned.
type LoadError struct {
	ModelPath string
	Cause     error
}

func (e *LoadError) Error() string {
	return "load model " + e.ModelPath + ": " + e.Cause.Error()
}

func (e *LoadError) Unwrap() error { return e.Cause }

// NotLoadedError reports a Generate on a handle that is not loaded.
type NotLoadedError struct {
	HandleID string
	State    HandleState
}

func (e *NotLoadedError) Error() string {
	if e.HandleID == "" {
		return "model not loaded"
	}
	return "model not loaded: handle " + e.HandleID + " is " + string(e.State)
}

// ConcurrentGenerationError reports a Generate (or Unload) while a session
// is active on the runner's engine. ActiveHandle names the handle that owns
// the active session when it differs from HandleID. The active session is
// unaffected.
type ConcurrentGenerationError struct {
	HandleID      string
	ActiveSession string
	ActiveHandle  string
}

func (e *ConcurrentGenerationError) Error() string {
	if e.ActiveHandle != "" && e.ActiveHandle != e.HandleID {
		return "generation already in progress on handle " + e.ActiveHandle + " (session " + e.ActiveSession + "), engine busy for handle " + e.HandleID
	}
	return "generation already in progress on handle " + e.HandleID + " (session " + e.ActiveSession + ")"
}

// GenerationError is the normalized shape of every generation failure,
// whether engine-reported or raised by the initiating request.
type GenerationError struct {
	SessionID string
	Message   string
	Cause     error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Message }

func (e *GenerationError) Unwrap() error { return e.Cause }

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var e *LoadError
	return errors.As(err, &e)
}

// IsNotLoaded reports whether err is a NotLoadedError.
func IsNotLoaded(err error) bool {
	var e *NotLoadedError
	return errors.As(err, &e)
}

// IsConcurrentGeneration reports whether err is a ConcurrentGenerationError.
func IsConcurrentGeneration(err error) bool {
	var e *ConcurrentGenerationError
	return errors.As(err, &e)
}

// IsGenerationError reports whether err is a GenerationError.
func IsGenerationError(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}
