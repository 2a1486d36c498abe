package session

import (
	"errors"
	"fmt"
)

// State is a step of the login state machine.
type State int

const (
	Anonymous State = iota
	CredentialsEntered
	AwaitingSecondFactor
	Authenticated
	// AuthenticationUncertain means no sign-in affordance was found and no
	// logged-in indicator either. Work may proceed, but the login was never
	// verified.
	AuthenticationUncertain
	Failed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "Anonymous"
	case CredentialsEntered:
		return "CredentialsEntered"
	case AwaitingSecondFactor:
		return "AwaitingSecondFactor"
	case Authenticated:
		return "Authenticated"
	case AuthenticationUncertain:
		return "AuthenticationUncertain"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Authenticated || s == AuthenticationUncertain || s == Failed
}

// ErrAuthentication matches every *AuthenticationError.
var ErrAuthentication = errors.New("authentication failed")

// Causes wrapped by AuthenticationError.
var (
	ErrNoCode         = errors.New("no second-factor code received")
	ErrNoCodeProvider = errors.New("second factor required but no code provider configured")
	ErrNoCredentials  = errors.New("sign-in required but no credentials configured")
	ErrUnverified     = errors.New("sign-in affordance and logged-in indicator both absent")
	errMissingElement = errors.New("element not found")
)

// AuthenticationError reports a login that ended in Failed.
type AuthenticationError struct {
	Site string
	// From is the state whose transition failed.
	From State
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("login to %s failed in state %s: %v", e.Site, e.From, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAuthentication) hold for every AuthenticationError.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}
