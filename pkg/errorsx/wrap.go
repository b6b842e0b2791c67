package errorsx

import "errors"

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// reasoner is implemented by the typed tool errors so they carry their
// reason without an extra wrapping layer.
type reasoner interface {
	ReasonCode() ReasonCode
}

// Wrap attaches a reason code to an error (no-op if err is nil or already reasoned).
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Reason extracts a reason code from an error, if present.
// The outermost reason wins.
func Reason(err error) ReasonCode {
	for err != nil {
		if re, ok := err.(ReasonedError); ok {
			return re.Reason
		}
		if r, ok := err.(reasoner); ok {
			return r.ReasonCode()
		}
		next := errors.Unwrap(err)
		if next == nil {
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				for _, e := range joined.Unwrap() {
					if code := Reason(e); code != ReasonUnknown {
						return code
					}
				}
			}
			return ReasonUnknown
		}
		err = next
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
