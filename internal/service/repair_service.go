package service

import (
	"context"
	"log/slog"
	"time"

	"pixelgram/internal/cache"
	"pixelgram/internal/middleware"
	"pixelgram/internal/repository"
)

// RepairService removes relationship rows orphaned by deletions made
// outside the service layer.
type RepairService struct {
	maintenance repository.MaintenanceRepository
	cache       *cache.Cache
	store       StoreOptions
}

func NewRepairService(maintenance repository.MaintenanceRepository, profileCache *cache.Cache, store StoreOptions) *RepairService {
	return &RepairService{maintenance: maintenance, cache: profileCache, store: store}
}

// Sweep runs one orphan sweep. The sweep may touch many rows, so it gets
// a longer bound than a request.
func (s *RepairService) Sweep(ctx context.Context) (*repository.SweepReport, error) {
	opts := s.store
	opts.Timeout = max(opts.timeout(), time.Minute)

	var report *repository.SweepReport
	err := opts.retry(ctx, "maintenance.sweep", func(ctx context.Context) error {
		var err error
		report, err = s.maintenance.SweepOrphans(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if report.Total() > 0 {
		// Profiles embed relationship ids; drop them all rather than track owners.
		s.flushProfiles(ctx)
	}
	middleware.Logger.InfoContext(ctx, "orphan sweep finished",
		slog.Int64("comments", report.Comments),
		slog.Int64("likes", report.Likes),
		slog.Int64("bookmarks", report.Bookmarks),
		slog.Int64("follows", report.Follows))
	return report, nil
}

func (s *RepairService) flushProfiles(ctx context.Context) {
	rdb := s.cache.Client()
	if rdb == nil {
		return
	}
	iter := rdb.Scan(ctx, 0, "user:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "profile cache scan failed", slog.String("error", err.Error()))
		return
	}
	s.cache.Invalidate(ctx, keys...)
}
