package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrNoIdentity indicates the session carries no authenticated identity.
	ErrNoIdentity = errors.New("no authenticated identity")
	// ErrSessionDisposed indicates the authorization session was disposed.
	ErrSessionDisposed = errors.New("authorization session disposed")
)
