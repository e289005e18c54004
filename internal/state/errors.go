package state

import "errors"

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrAlreadyBound        = errors.New("connection already bound to a different identity")
	ErrBroadcastBufferFull = errors.New("broadcast buffer full")
)
