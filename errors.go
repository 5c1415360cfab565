package cachebench

import "errors"

var (
	ErrBackendWrite   = errors.New("cachebench: backend write failed")
	ErrBackendRead    = errors.New("cachebench: backend read failed")
	ErrMiss           = errors.New("cachebench: cache miss")
	ErrNoInputs       = errors.New("cachebench: no inputs")
	ErrEditInProgress = errors.New("cachebench: entry is already being edited")
	ErrInvalidView    = errors.New("cachebench: view outside buffer storage")
	ErrClosed         = errors.New("cachebench: closed")
)
