package domain

import "fmt"

// TypeHint tells the asset store how to interpret the raw content of an asset
type TypeHint string

const (
	TypeBytes TypeHint = "bytes"
	TypeText  TypeHint = "text"
	TypeJSON  TypeHint = "json"
)

// ParseTypeHint parses a user supplied hint. The empty string maps to TypeBytes.
func ParseTypeHint(raw string) (TypeHint, error) {
	switch raw {
	case "", string(TypeBytes):
		return TypeBytes, nil
	case string(TypeText):
		return TypeText, nil
	case string(TypeJSON):
		return TypeJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTypeHint, raw)
	}
}

// Asset is a loaded asset as returned by an asset store
//
// NOTE: Assets are shared between every holder of the same cache entry and must be treated as read-only
type Asset struct {
	Key   string
	Type  TypeHint
	Size  int64
	Value any
}
