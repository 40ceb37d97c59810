package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/Amund211/assetcache/internal/domain"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DecodeAll is safe for concurrent use, so a single decoder is shared
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// Decode turns the raw content of the asset stored under key into an asset of the given type
//
// Keys ending in .zst or .lz4 are decompressed first. Size is the number of raw bytes read from the store.
func Decode(key string, raw []byte, hint domain.TypeHint) (*domain.Asset, error) {
	content, err := decompress(key, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecodeFailed, key, err)
	}

	var value any
	switch hint {
	case domain.TypeBytes:
		value = content
	case domain.TypeText:
		if !utf8.Valid(content) {
			return nil, fmt.Errorf("%w: %s: content is not valid utf-8", domain.ErrDecodeFailed, key)
		}
		value = string(content)
	case domain.TypeJSON:
		var parsed any
		if err := json.Unmarshal(content, &parsed); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecodeFailed, key, err)
		}
		value = parsed
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTypeHint, hint)
	}

	return &domain.Asset{
		Key:   key,
		Type:  hint,
		Size:  int64(len(raw)),
		Value: value,
	}, nil
}

func decompress(key string, raw []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(key, ".zst"):
		content, err := zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return content, nil
	case strings.HasSuffix(key, ".lz4"):
		content, err := io.ReadAll(lz4.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return content, nil
	default:
		return raw, nil
	}
}
