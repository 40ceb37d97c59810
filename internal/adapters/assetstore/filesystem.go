package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/Amund211/assetcache/internal/codec"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Filesystem loads the asset with key k from the file <root>/k
type Filesystem struct {
	fs billy.Filesystem

	handles *handleTracker
	tracer  trace.Tracer
}

func NewFilesystem(fs billy.Filesystem, logger *slog.Logger) *Filesystem {
	return &Filesystem{
		fs:      fs,
		handles: newHandleTracker(logger.With("store", "filesystem")),
		tracer:  otel.Tracer("assetcache/assetstore/filesystem"),
	}
}

func NewOSFilesystem(dir string, logger *slog.Logger) *Filesystem {
	return NewFilesystem(osfs.New(dir), logger)
}

// Keys are slash separated paths relative to the store root
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: key %q", domain.ErrInvalidKey, key)
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: key %q", domain.ErrInvalidKey, key)
	}

	return cleaned, nil
}

func (f *Filesystem) Load(ctx context.Context, key string, hint domain.TypeHint) (Handle, *domain.Asset, error) {
	ctx, span := f.tracer.Start(ctx, "Filesystem.Load", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	filename, err := cleanKey(key)
	if err != nil {
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	file, err := f.fs.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: key %q", domain.ErrAssetNotFound, key)
	} else if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to open asset file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to read asset file: %w", err)
	}

	asset, err := codec.Decode(key, raw, hint)
	if err != nil {
		return nil, nil, err
	}

	return f.handles.issue(key), asset, nil
}

func (f *Filesystem) Release(handle Handle) {
	f.handles.release(handle)
}

func (f *Filesystem) Outstanding() int {
	return f.handles.count()
}
