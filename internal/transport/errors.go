package transport

import "errors"

// Kind classifies a transport failure.
type Kind int

const (
	// KindConfig means the target URL was unset or unusable; no network
	// call was made.
	KindConfig Kind = iota
	// KindNetwork means the request could not be completed.
	KindNetwork
	// KindRemote means the endpoint answered with a non-success status.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is the single failure type surfaced by the transport layer. Hint
// carries optional advisory remediation text for known remote
// misconfigurations; it never changes the error kind.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return e.Message + ". Hint: " + e.Hint
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the typed transport error inside err, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsConfigError reports whether err was caused by an unset endpoint URL.
func IsConfigError(err error) bool {
	te, ok := AsError(err)
	return ok && te.Kind == KindConfig
}

// IsNetworkError reports whether err was a failed network call.
func IsNetworkError(err error) bool {
	te, ok := AsError(err)
	return ok && te.Kind == KindNetwork
}

// IsRemoteError reports whether err carries a non-success endpoint reply.
func IsRemoteError(err error) bool {
	te, ok := AsError(err)
	return ok && te.Kind == KindRemote
}
