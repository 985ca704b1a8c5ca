package tenant

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/internal/telemetry"
)

// DiskTracker periodically recomputes every tenant's disk usage so quota
// checks never walk the filesystem on the request path.
type DiskTracker struct {
	registry *Registry
	interval time.Duration
}

// NewDiskTracker creates a tracker that refreshes every interval.
func NewDiskTracker(registry *Registry, interval time.Duration) *DiskTracker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DiskTracker{registry: registry, interval: interval}
}

// Run refreshes usage immediately and then on every tick until ctx is done.
func (d *DiskTracker) Run(ctx context.Context) error {
	d.RefreshAll(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.RefreshAll(ctx)
		}
	}
}

// RefreshAll recomputes usage for every registered tenant that is not
// suspended.
func (d *DiskTracker) RefreshAll(ctx context.Context) {
	for _, s := range d.registry.List() {
		if ctx.Err() != nil {
			return
		}
		if s.Suspended() {
			continue
		}
		d.Refresh(ctx, s)
	}
}

// Refresh recomputes usage for one tenant. On failure the previous value
// is kept.
func (d *DiskTracker) Refresh(ctx context.Context, s *Server) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDiskUsage)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.ServerID(s.ID()))

	used, err := s.Filesystem().DiskUsage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.RecordError(ctx, err)
			logger.Warn("Disk usage refresh failed", logger.Server(s.ID()), logger.Err(err))
		}
		return
	}

	s.SetDiskUsed(used)
	if s.OverQuota() {
		logger.Debug("Tenant over disk quota",
			logger.Server(s.ID()),
			logger.KeyDiskUsed, humanize.IBytes(uint64(used)),
			logger.KeyQuota, humanize.IBytes(uint64(s.DiskQuota())))
	}
}
