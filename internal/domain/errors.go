package domain

import "errors"

var (
	ErrLoadFailed      = errors.New("asset load failed")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrCacheClosed     = errors.New("resource cache is closed")
	ErrInvalidKey      = errors.New("invalid asset key")
	ErrUnknownTypeHint = errors.New("unknown type hint")
	ErrDecodeFailed    = errors.New("failed to decode asset")
)
