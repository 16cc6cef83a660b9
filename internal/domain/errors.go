package domain

import "errors"

var (
	ErrChannelExists  = errors.New("channel already exists")
	ErrWrongPassword  = errors.New("wrong password")
	ErrMalformedInput = errors.New("malformed input")
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrUserIDTaken    = errors.New("user id already in use")
)
