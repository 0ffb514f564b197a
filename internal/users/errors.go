package users

import "errors"

var (
	// ошибки входных данных
	ErrInvalidIdentity     = errors.New("invalid user identity")
	ErrInvalidAmount       = errors.New("invalid credit amount")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotFound            = errors.New("user not found")

	// ошибки хранилища
	ErrStorageCorrupted   = errors.New("users file is corrupted")
	ErrStorageUnavailable = errors.New("users file is unavailable")
	ErrTooManyUsers       = errors.New("too many users to persist")
	ErrInvalidFilename    = errors.New("invalid users file name")
	ErrLocked             = errors.New("users file is locked by another process")
)
