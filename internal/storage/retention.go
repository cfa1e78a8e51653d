package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Deleted []string
	Failed  int
}

// RetentionSweeper removes images older than a retention window.
type RetentionSweeper struct {
	dir       string
	retention time.Duration
	keep      map[string]bool
	now       func() time.Time
	log       *slog.Logger
}

// NewRetentionSweeper sweeps <root>/images. Files named in keep (the mock
// image) are never removed.
func NewRetentionSweeper(root string, retention time.Duration, log *slog.Logger, keep ...string) *RetentionSweeper {
	k := make(map[string]bool, len(keep))
	for _, name := range keep {
		k[name] = true
	}
	return &RetentionSweeper{
		dir:       filepath.Join(root, ImagesDirName),
		retention: retention,
		keep:      k,
		now:       time.Now,
		log:       logging.Component(log, "retention"),
	}
}

// Sweep deletes regular files whose mtime is older than the retention
// window. Errors on single files are logged and skipped; only failing to
// list the directory is returned.
func (r *RetentionSweeper) Sweep() (SweepResult, error) {
	var res SweepResult
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return res, domain.Wrap(domain.KindIO, "sweep", err)
	}

	cutoff := r.now().Add(-r.retention)
	for _, e := range entries {
		if !e.Type().IsRegular() || r.keep[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			r.log.Warn("stat failed", "file", e.Name(), "err", err)
			res.Failed++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		if err := os.Remove(path); err != nil {
			r.log.Warn("delete failed", "path", path, "err", err)
			res.Failed++
			continue
		}
		r.log.Info("deleted expired image", "path", path, "mtime", info.ModTime().Format(time.DateTime))
		res.Deleted = append(res.Deleted, e.Name())
	}

	r.log.Info("retention sweep done", "deleted", len(res.Deleted), "failed", res.Failed)
	return res, nil
}
