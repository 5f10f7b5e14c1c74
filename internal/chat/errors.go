package chat

import "errors"

var (
	ErrReceiverNotFound = errors.New("receiver not found or inactive")
	ErrPeerNotFound     = errors.New("conversation peer not found or inactive")
)
