// Package localstore persists the anchor cache and the pending-upload queue
// as whole-file JSON documents on local disk.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"civicanchor-be/logger"
	"civicanchor-be/metrics"
	"civicanchor-be/models"
)

const (
	CacheFileName   = "anchors_cache.json"
	PendingFileName = "pending_uploads.json"
)

// Option configures a store.
type Option func(*file)

// WithLogger sets the logger used for quarantine and skip events.
func WithLogger(l *slog.Logger) Option {
	return func(f *file) { f.log = logger.OrDefault(l) }
}

// WithClock sets the clock used to name quarantine backups.
func WithClock(now func() time.Time) Option {
	return func(f *file) { f.now = now }
}

type document struct {
	Anchors []json.RawMessage `json:"anchors"`
}

type writeDocument struct {
	Anchors []models.AnchorRecord `json:"anchors"`
}

// file is one JSON document guarded by its own mutex. Every exported store
// operation holds mu for its whole read-modify-write.
type file struct {
	mu   sync.Mutex
	path string
	name string
	log  *slog.Logger
	now  func() time.Time
}

func newFile(dir, name string, opts []Option) *file {
	f := &file{
		path: filepath.Join(dir, name),
		name: name,
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// read returns the records on disk. A missing file is an empty list. A file
// that does not parse is quarantined and also reads as empty. Records that
// fail individually are skipped. Callers hold mu.
func (f *file) read() ([]models.AnchorRecord, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.AnchorRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.name, err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		f.quarantine(err)
		return []models.AnchorRecord{}, nil
	}

	records := make([]models.AnchorRecord, 0, len(doc.Anchors))
	for i, raw := range doc.Anchors {
		var rec models.AnchorRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			f.log.Warn("local_record_skipped", "file", f.name, "index", i, "error", err)
			metrics.MalformedRecordsTotal.WithLabelValues("local").Inc()
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// write replaces the whole file. The temp-file rename keeps a crash from
// leaving a half-written document behind. Callers hold mu.
func (f *file) write(records []models.AnchorRecord) error {
	if records == nil {
		records = []models.AnchorRecord{}
	}
	b, err := json.Marshal(writeDocument{Anchors: records})
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.name, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.name, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", f.name, err)
	}
	return nil
}

// quarantine moves a corrupt file aside under a timestamped name. If the
// move fails the file is deleted so later reads start clean.
func (f *file) quarantine(cause error) {
	metrics.CacheQuarantinesTotal.Inc()
	backup := BackupPath(f.path, f.now())
	if err := os.Rename(f.path, backup); err != nil {
		f.log.Error("local_backup_failed", "file", f.name, "error", err)
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.log.Error("local_corrupt_delete_failed", "file", f.name, "error", rmErr)
		}
		return
	}
	f.log.Warn("local_file_quarantined", "file", f.name, "backup", filepath.Base(backup), "cause", cause)
}

// BackupPath names the quarantine copy of path taken at t.
func BackupPath(path string, t time.Time) string {
	return fmt.Sprintf("%s.corrupt-%s", path, t.UTC().Format("20060102T150405.000000000"))
}
