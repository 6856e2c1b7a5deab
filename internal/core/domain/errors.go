package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrNotJoined           = errors.New("not joined to a conference")
	ErrAlreadyFulfilled    = errors.New("subscription stream already set")
	ErrConferenceNotFound  = errors.New("conference roster not found")
)
