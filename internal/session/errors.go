package session

import "errors"

// ErrNoSession is returned when an operation needs an open session and
// none exists.
var ErrNoSession = errors.New("no active session")

// ErrClosed is returned when a caller attempts to mutate a finalized
// session. Recoverable: the caller starts a new session.
var ErrClosed = errors.New("session is closed")

// ErrPaused is returned when a caller attempts to record activity on a
// paused session without resuming it first.
var ErrPaused = errors.New("session is paused")
