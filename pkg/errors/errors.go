package errors

import "errors"

// ----------------- cache ------------------
var (
	// ErrCacheMiss возвращается, когда ключ отсутствует в кэше
	ErrCacheMiss = errors.New("cache miss")
)
