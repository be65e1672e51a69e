// Package planner answers proximity queries over geohash-indexed records and
// owns the write path from the local cache to the remote issues collection.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"civicanchor-be/geohash"
	"civicanchor-be/localstore"
	"civicanchor-be/logger"
	"civicanchor-be/metrics"
	"civicanchor-be/models"
	"civicanchor-be/stream"
)

const (
	// ResultLimit caps every nearby result list.
	ResultLimit = 20
	// RecentLimit is the default size of a recent listing; MaxRecentLimit
	// caps it.
	RecentLimit    = 20
	MaxRecentLimit = 500
)

var (
	// ErrInvalidCoordinates rejects submissions outside WGS84 bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrNotFound is returned when neither source holds the requested id.
	ErrNotFound = errors.New("anchor not found")
)

// Remote is the primary record source.
type Remote interface {
	FindIssuesByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error)
	FindSurfaceByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error)
	FindIssueByID(ctx context.Context, id string) (models.AnchorRecord, bool, error)
	FindRecentIssues(ctx context.Context, limit int64) ([]models.AnchorRecord, error)
	UpsertIssue(ctx context.Context, rec models.AnchorRecord) error
	IssuesInRange(prefix string) stream.Listener[models.AnchorRecord]
}

// Source names where a result set came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Result is one record with its distance from the query center.
type Result struct {
	Record         models.AnchorRecord `json:"record"`
	DistanceMeters float64             `json:"distanceMeters"`
}

// SyncReport summarizes one pass over the pending-upload queue.
type SyncReport struct {
	Attempted int `json:"attempted"`
	Uploaded  int `json:"uploaded"`
	Remaining int `json:"remaining"`
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.log = logger.OrDefault(l) }
}

// WithClock sets the clock used to stamp submissions.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithUploadTimeout bounds each background upload.
func WithUploadTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.uploadTimeout = d
		}
	}
}

// Planner plans candidate cells, queries the remote source and falls back to
// the local cache.
type Planner struct {
	remote  Remote
	cache   *localstore.Cache
	pending *localstore.PendingQueue

	log           *slog.Logger
	now           func() time.Time
	uploadTimeout time.Duration

	uploads sync.WaitGroup
}

// New returns a planner. remote may be nil, in which case every read is
// served locally and every upload is queued.
func New(remote Remote, cache *localstore.Cache, pending *localstore.PendingQueue, opts ...Option) *Planner {
	p := &Planner{
		remote:        remote,
		cache:         cache,
		pending:       pending,
		log:           slog.Default(),
		now:           time.Now,
		uploadTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CandidateCells returns the geohash cells searched for a query.
func CandidateCells(lat, lon, radiusMeters float64) []string {
	return geohash.Neighbors(lat, lon, RadiusKm(radiusMeters))
}

// Nearby returns records within radiusMeters of the center, nearest first,
// at most ResultLimit. The remote source is tried first; if it fails or has
// nothing in the candidate cells the same filter runs over the local cache.
func (p *Planner) Nearby(ctx context.Context, lat, lon, radiusMeters float64) ([]Result, Source, error) {
	cells := CandidateCells(lat, lon, radiusMeters)

	if p.remote != nil {
		records, err := p.remote.FindIssuesByGeohash(ctx, cells)
		if err == nil && len(records) > 0 {
			return filterNearby(records, nil, lat, lon, radiusMeters), SourceRemote, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", cerr
		}
		if err != nil {
			p.log.Warn("remote_fetch_failed", "collection", "issues", "error", err)
		}
	}

	metrics.LocalFallbacksTotal.Inc()
	records, err := p.cache.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load local cache: %w", err)
	}
	return filterNearby(records, cells, lat, lon, radiusMeters), SourceLocal, nil
}

// NearbyAll queries issues and surface anchors with the same candidate cells
// and merges both before filtering. A failed collection contributes nothing;
// the other still counts.
func (p *Planner) NearbyAll(ctx context.Context, lat, lon, radiusMeters float64) ([]Result, error) {
	cells := CandidateCells(lat, lon, radiusMeters)
	if p.remote == nil {
		return []Result{}, nil
	}

	var issues, surface []models.AnchorRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := p.remote.FindIssuesByGeohash(gctx, cells)
		if err != nil {
			p.log.Warn("remote_fetch_failed", "collection", "issues", "error", err)
			return nil
		}
		issues = recs
		return nil
	})
	g.Go(func() error {
		recs, err := p.remote.FindSurfaceByGeohash(gctx, cells)
		if err != nil {
			p.log.Warn("remote_fetch_failed", "collection", "surface_anchors", "error", err)
			return nil
		}
		surface = recs
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := make([]models.AnchorRecord, 0, len(issues)+len(surface))
	merged = append(merged, issues...)
	merged = append(merged, surface...)
	return filterNearby(merged, nil, lat, lon, radiusMeters), nil
}

// Listen streams issues sharing the center's five-character geohash prefix.
func (p *Planner) Listen(ctx context.Context, lat, lon float64, onSnapshot func([]models.AnchorRecord)) (stream.Subscription, error) {
	if p.remote == nil {
		return nil, errors.New("no remote source configured")
	}
	return p.remote.IssuesInRange(geohash.Prefix(lat, lon)).Listen(ctx, onSnapshot)
}

// filterNearby keeps records within the radius, sorted by distance and
// capped. Remote records already matched the cells on their stored geohash and
// pass nil cells. The local replay passes the candidate cells, checked
// against a geohash recomputed from each record's coordinates.
func filterNearby(records []models.AnchorRecord, cells []string, lat, lon, radiusMeters float64) []Result {
	radiusMeters = floorRadius(radiusMeters)
	var inCell map[string]struct{}
	if cells != nil {
		inCell = make(map[string]struct{}, len(cells))
		for _, c := range cells {
			inCell[c] = struct{}{}
		}
	}

	out := []Result{}
	for _, r := range records {
		if inCell != nil {
			if _, ok := inCell[geohash.Encode(r.Latitude, r.Longitude)]; !ok {
				continue
			}
		}
		d := HaversineMeters(lat, lon, r.Latitude, r.Longitude)
		if d > radiusMeters {
			continue
		}
		out = append(out, Result{Record: r, DistanceMeters: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > ResultLimit {
		out = out[:ResultLimit]
	}
	return out
}

// floorRadius normalizes degenerate radii to one meter.
func floorRadius(r float64) float64 {
	if math.IsNaN(r) || r < 1 {
		return 1
	}
	return r
}

// prepare applies submission defaults and recomputes the geohash.
func (p *Planner) prepare(rec models.AnchorRecord) (models.AnchorRecord, error) {
	rec = rec.Normalize()
	if !models.ValidCoordinates(rec.Latitude, rec.Longitude) {
		return rec, fmt.Errorf("%w: %f,%f", ErrInvalidCoordinates, rec.Latitude, rec.Longitude)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = p.now().UnixMilli()
	}
	rec.Geohash = geohash.Encode(rec.Latitude, rec.Longitude)
	return rec, nil
}

// Submit writes rec to the local cache, then uploads it in the background.
// A failed upload leaves the record in the pending queue. The returned record
// is the one persisted.
func (p *Planner) Submit(ctx context.Context, rec models.AnchorRecord) (models.AnchorRecord, error) {
	rec, err := p.prepare(rec)
	if err != nil {
		return rec, err
	}
	if err := p.cache.Upsert(rec); err != nil {
		return rec, fmt.Errorf("cache anchor: %w", err)
	}
	p.scheduleUpload(ctx, rec)
	return rec, nil
}

// Get returns the record stored under id. The remote source answers first; a
// failure or a miss there falls back to the local cache.
func (p *Planner) Get(ctx context.Context, id string) (models.AnchorRecord, Source, error) {
	if p.remote != nil {
		rec, ok, err := p.remote.FindIssueByID(ctx, id)
		if err == nil && ok {
			return rec, SourceRemote, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return models.AnchorRecord{}, "", cerr
		}
		if err != nil {
			p.log.Warn("remote_fetch_failed", "collection", "issues", "id", id, "error", err)
		}
	}

	records, err := p.cache.Load()
	if err != nil {
		return models.AnchorRecord{}, "", fmt.Errorf("load local cache: %w", err)
	}
	for _, r := range records {
		if r.ID == id {
			return r, SourceLocal, nil
		}
	}
	return models.AnchorRecord{}, SourceLocal, ErrNotFound
}

// Recent returns up to limit records, newest first, with the same
// remote-then-local fallback as Nearby. limit is clamped to
// [1, MaxRecentLimit]; zero or less means RecentLimit.
func (p *Planner) Recent(ctx context.Context, limit int) ([]models.AnchorRecord, Source, error) {
	if limit <= 0 {
		limit = RecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	if p.remote != nil {
		records, err := p.remote.FindRecentIssues(ctx, int64(limit))
		if err == nil && len(records) > 0 {
			return records, SourceRemote, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", cerr
		}
		if err != nil {
			p.log.Warn("remote_fetch_failed", "collection", "issues", "error", err)
		}
	}

	metrics.LocalFallbacksTotal.Inc()
	records, err := p.cache.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load local cache: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, SourceLocal, nil
}

// UpdateStatus moves a record to status and writes it through the same
// cache-then-upload path as Submit.
func (p *Planner) UpdateStatus(ctx context.Context, id string, status models.Status) (models.AnchorRecord, error) {
	if _, ok := models.ParseStatus(string(status)); !ok {
		return models.AnchorRecord{}, fmt.Errorf("unknown status %q", status)
	}
	return p.modify(ctx, id, func(r *models.AnchorRecord) { r.Status = status })
}

// Upvote adds one upvote to a record. Concurrent upvotes from different
// nodes are last-writer-wins on the remote document.
func (p *Planner) Upvote(ctx context.Context, id string) (models.AnchorRecord, error) {
	return p.modify(ctx, id, func(r *models.AnchorRecord) { r.Upvotes++ })
}

func (p *Planner) modify(ctx context.Context, id string, change func(*models.AnchorRecord)) (models.AnchorRecord, error) {
	rec, _, err := p.Get(ctx, id)
	if err != nil {
		return models.AnchorRecord{}, err
	}
	change(&rec)
	rec = rec.Normalize()
	rec.Geohash = geohash.Encode(rec.Latitude, rec.Longitude)
	if err := p.cache.Upsert(rec); err != nil {
		return rec, fmt.Errorf("cache anchor: %w", err)
	}
	p.scheduleUpload(ctx, rec)
	return rec, nil
}

// scheduleUpload uploads rec in the background, detached from ctx's
// cancellation but bounded by the upload timeout.
func (p *Planner) scheduleUpload(ctx context.Context, rec models.AnchorRecord) {
	p.uploads.Add(1)
	go func() {
		defer p.uploads.Done()
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.uploadTimeout)
		defer cancel()
		p.upload(uctx, rec)
	}()
}

// Wait blocks until background uploads started by Submit have finished.
func (p *Planner) Wait() { p.uploads.Wait() }

func (p *Planner) upload(ctx context.Context, rec models.AnchorRecord) {
	err := errors.New("no remote source configured")
	if p.remote != nil {
		err = p.remote.UpsertIssue(ctx, rec)
	}
	if err == nil {
		metrics.UploadsTotal.WithLabelValues("ok").Inc()
		p.log.Debug("anchor_uploaded", "id", rec.ID)
		return
	}

	metrics.UploadsTotal.WithLabelValues("failed").Inc()
	p.log.Warn("anchor_upload_failed", "id", rec.ID, "error", err)
	if qerr := p.pending.Add(rec); qerr != nil {
		p.log.Error("pending_enqueue_failed", "id", rec.ID, "error", qerr)
		return
	}
	p.refreshPendingGauge()
}

// RetryPending uploads every queued record once. Successes leave the queue;
// failures stay for the next externally triggered retry.
func (p *Planner) RetryPending(ctx context.Context) (SyncReport, error) {
	queued, err := p.pending.List()
	if err != nil {
		return SyncReport{}, fmt.Errorf("load pending uploads: %w", err)
	}

	var report SyncReport
	for _, rec := range queued {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		if p.remote == nil {
			continue
		}
		up := rec
		up.Geohash = geohash.Encode(up.Latitude, up.Longitude)
		if err := p.remote.UpsertIssue(ctx, up); err != nil {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			p.log.Warn("pending_retry_failed", "id", rec.ID, "error", err)
			continue
		}
		metrics.UploadsTotal.WithLabelValues("ok").Inc()
		report.Uploaded++
		// A newer version queued during the upload stays for the next pass.
		if _, err := p.pending.RemoveVersion(rec); err != nil {
			return report, fmt.Errorf("dequeue %s: %w", rec.ID, err)
		}
	}

	remaining, err := p.pending.Count()
	if err != nil {
		return report, fmt.Errorf("count pending uploads: %w", err)
	}
	report.Remaining = remaining
	metrics.PendingUploads.Set(float64(remaining))
	p.log.Info("pending_retry_done", "attempted", report.Attempted, "uploaded", report.Uploaded, "remaining", remaining)
	return report, nil
}

// PendingCount returns the number of records awaiting upload.
func (p *Planner) PendingCount() (int, error) {
	return p.pending.Count()
}

// ClearPending drops every queued record without uploading it.
func (p *Planner) ClearPending() error {
	if err := p.pending.Clear(); err != nil {
		return err
	}
	metrics.PendingUploads.Set(0)
	return nil
}

func (p *Planner) refreshPendingGauge() {
	if n, err := p.pending.Count(); err == nil {
		metrics.PendingUploads.Set(float64(n))
	}
}
