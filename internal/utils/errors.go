package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is empty")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")
)

// ----------------- clone service ------------------
var (
	ErrEmptyToken      = errors.New("api token is empty")
	ErrNoURLs          = errors.New("no listing urls provided")
	ErrInvalidTicket   = errors.New("invalid batch ticket")
	ErrExpiredTicket   = errors.New("batch ticket expired")
	ErrJournalDisabled = errors.New("batch journal is disabled")
)
