package agent

import "errors"

var (
	// ErrOutsideReplyWindow is the dispatch contract for messaging
	// providers that only allow replies within a window after the user's
	// last inbound message. Dispatcher implementations wrap it when the
	// provider rejects a send for that reason.
	ErrOutsideReplyWindow = errors.New("outside provider reply window")
)
