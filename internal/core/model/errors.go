package model

import "errors"

var (
	ErrUnknownCredential = errors.New("unknown credential")
	ErrInactiveEmployee  = errors.New("inactive employee or credential")
	ErrUnsupportedScheme = errors.New("unsupported credential scheme")
	// ErrNotRecognized is the only identity failure shown outside the service.
	ErrNotRecognized = errors.New("credential not recognized")

	ErrInvalidTransition = errors.New("invalid punch transition")
	ErrDuplicatePunch    = errors.New("duplicate punch")
	ErrConflict          = errors.New("punch conflicts with previous punch")
	ErrOutOfOrder        = errors.New("punch timestamp precedes last accepted punch")

	// ErrTransient marks failures of the system of record that may succeed on retry.
	ErrTransient = errors.New("system of record unavailable")

	ErrMissingConfig = errors.New("missing calculation configuration")
)

// Public hides which identity check failed.
func Public(err error) error {
	if errors.Is(err, ErrUnknownCredential) || errors.Is(err, ErrInactiveEmployee) || errors.Is(err, ErrUnsupportedScheme) {
		return ErrNotRecognized
	}
	return err
}

// IsTerminal reports whether replaying a punch that failed with err can
// never succeed.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnknownCredential) ||
		errors.Is(err, ErrInactiveEmployee)
}
