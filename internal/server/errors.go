package server

import "errors"

var (
	ErrNoActiveRequest = errors.New("server: no active request")
	ErrPageOutOfRange  = errors.New("server: page out of range")
	ErrRegistryFrozen  = errors.New("server: registry frozen")
	ErrRegistryFull    = errors.New("server: registry full")
	ErrNoPages         = errors.New("server: no pages registered")
	ErrAlreadyRunning  = errors.New("server: already running")
)
