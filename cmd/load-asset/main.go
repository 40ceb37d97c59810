package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Amund211/assetcache/internal/adapters/assetstore"
	"github.com/Amund211/assetcache/internal/adapters/memoryprobe"
	"github.com/Amund211/assetcache/internal/cache"
	"github.com/Amund211/assetcache/internal/domain"
)

type loadedAsset struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	RefCount int    `json:"refCount"`
	Error    string `json:"error,omitempty"`
}

// run acquires every key through a cache over store and writes the result to out
//
// The cache is always shut down before returning. Returns the process exit code.
func run(ctx context.Context, store assetstore.AssetStore, hint domain.TypeHint, keys []string, out io.Writer, logger *slog.Logger) int {
	resourceCache, err := cache.New(cache.Config{
		Store:  store,
		Probe:  memoryprobe.NewRuntime(),
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to create resource cache", "error", err.Error())
		return 1
	}
	defer resourceCache.Shutdown(ctx)

	failed := false
	results := make([]loadedAsset, 0, len(keys))
	for _, key := range keys {
		asset, err := resourceCache.Acquire(ctx, key, hint)
		if err != nil {
			failed = true
			results = append(results, loadedAsset{Key: key, Type: string(hint), Error: err.Error()})
			continue
		}

		status, _ := resourceCache.KeyStatus(key)
		results = append(results, loadedAsset{
			Key:      asset.Key,
			Type:     string(asset.Type),
			Size:     asset.Size,
			RefCount: status.RefCount,
		})
	}

	resourceCache.LogStatus(ctx)

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(map[string]any{
		"assets": results,
		"status": resourceCache.Status(),
	})
	if err != nil {
		logger.Error("Failed to write output", "error", err.Error())
		return 1
	}

	if failed {
		return 1
	}
	return 0
}

func main() {
	dir := flag.String("dir", ".", "directory to load assets from")
	rawHint := flag.String("type", "bytes", "type hint: bytes, text or json")
	verbose := flag.Bool("v", false, "log cache activity to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: load-asset [-dir DIR] [-type HINT] KEY...")
		os.Exit(2)
	}

	hint, err := domain.ParseTypeHint(*rawHint)
	if err != nil {
		logger.Error("Invalid type hint", "error", err.Error())
		os.Exit(2)
	}

	os.Exit(run(context.Background(), assetstore.NewOSFilesystem(*dir, logger), hint, flag.Args(), os.Stdout, logger))
}
