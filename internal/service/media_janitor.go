package service

import (
	"context"
	"log/slog"

	"pixelgram/internal/middleware"
	"pixelgram/internal/repository"
)

// mediaJanitor removes stored media once no post or avatar references it.
// Files are named by content hash, so two records may share one file.
type mediaJanitor struct {
	media MediaStore
	refs  repository.MaintenanceRepository
	store StoreOptions
}

func (j mediaJanitor) release(ctx context.Context, url string) {
	if j.media == nil || url == "" {
		return
	}
	var inUse bool
	err := j.store.once(ctx, func(ctx context.Context) error {
		var err error
		inUse, err = j.refs.MediaInUse(ctx, url)
		return err
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "media reference check failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	if inUse {
		return
	}
	if err := j.media.Remove(ctx, url); err != nil {
		middleware.Logger.WarnContext(ctx, "media cleanup failed", slog.String("url", url), slog.String("error", err.Error()))
	}
}
