package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicanchor-be/geohash"
	"civicanchor-be/localstore"
	"civicanchor-be/models"
	"civicanchor-be/stream"
)

type fakeRemote struct {
	mu         sync.Mutex
	issues     []models.AnchorRecord
	surface    []models.AnchorRecord
	issuesErr  error
	surfaceErr error
	upsertErr  error
	upserted   []models.AnchorRecord
	cells      []string
	prefix     string
	recentErr  error
	onUpsert   func(models.AnchorRecord)
}

func inCells(records []models.AnchorRecord, hashes []string) []models.AnchorRecord {
	set := map[string]bool{}
	for _, h := range hashes {
		set[h] = true
	}
	out := []models.AnchorRecord{}
	for _, r := range records {
		if set[r.Geohash] {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeRemote) FindIssuesByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells = hashes
	if f.issuesErr != nil {
		return nil, f.issuesErr
	}
	return inCells(f.issues, hashes), nil
}

func (f *fakeRemote) FindSurfaceByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.surfaceErr != nil {
		return nil, f.surfaceErr
	}
	return inCells(f.surface, hashes), nil
}

func (f *fakeRemote) FindIssueByID(ctx context.Context, id string) (models.AnchorRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issuesErr != nil {
		return models.AnchorRecord{}, false, f.issuesErr
	}
	for _, r := range f.issues {
		if r.ID == id {
			return r, true, nil
		}
	}
	return models.AnchorRecord{}, false, nil
}

func (f *fakeRemote) FindRecentIssues(ctx context.Context, limit int64) ([]models.AnchorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	out := append([]models.AnchorRecord(nil), f.issues...)
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) UpsertIssue(ctx context.Context, rec models.AnchorRecord) error {
	f.mu.Lock()
	hook := f.onUpsert
	if f.upsertErr != nil {
		err := f.upsertErr
		f.mu.Unlock()
		return err
	}
	f.upserted = append(f.upserted, rec)
	f.mu.Unlock()
	if hook != nil {
		hook(rec)
	}
	return nil
}

func (f *fakeRemote) uploads() []models.AnchorRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AnchorRecord(nil), f.upserted...)
}

func (f *fakeRemote) IssuesInRange(prefix string) stream.Listener[models.AnchorRecord] {
	f.mu.Lock()
	f.prefix = prefix
	f.mu.Unlock()
	return stream.ListenerFunc[models.AnchorRecord](func(ctx context.Context, fn func([]models.AnchorRecord)) (stream.Subscription, error) {
		fn(f.issues)
		return stream.NewHandle(func() {}, nil), nil
	})
}

func (f *fakeRemote) setUpsertErr(err error) {
	f.mu.Lock()
	f.upsertErr = err
	f.mu.Unlock()
}

// centerCell returns the center of the geohash cell around a city point so
// test records can be placed inside it.
func centerCell() (geohash.Box, float64, float64) {
	box, _ := geohash.DecodeBounds(geohash.Encode(40.7128, -74.0060))
	lat, lon := box.Center()
	return box, lat, lon
}

func at(id string, lat, lon float64) models.AnchorRecord {
	return models.AnchorRecord{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Geohash:   geohash.Encode(lat, lon),
		Status:    models.StatusPending,
		Severity:  models.SeverityMedium,
	}
}

func fixture(t *testing.T) []models.AnchorRecord {
	t.Helper()
	box, lat, lon := centerCell()
	h := box.MaxLat - box.MinLat
	return []models.AnchorRecord{
		at("far-in-cell", lat+0.45*h, lon),
		at("center", lat, lon),
		at("near", lat-0.2*h, lon),
		at("north-cell", lat+geohash.NeighborOffset, lon),
		at("unindexed", lat+0.02, lon),
	}
}

func newPlanner(t *testing.T, remote Remote) (*Planner, *localstore.Cache, *localstore.PendingQueue) {
	t.Helper()
	dir := t.TempDir()
	cache := localstore.NewCache(dir)
	pending := localstore.NewPendingQueue(dir)
	return New(remote, cache, pending), cache, pending
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.ID
	}
	return out
}

func TestHaversineMeters(t *testing.T) {
	assert.InDelta(t, 111195, HaversineMeters(0, 0, 0, 1), 1)
	assert.Equal(t, 0.0, HaversineMeters(10, 10, 10, 10))
}

func TestRadiusKm(t *testing.T) {
	assert.Equal(t, 1, RadiusKm(0))
	assert.Equal(t, 1, RadiusKm(-50))
	assert.Equal(t, 1, RadiusKm(999))
	assert.Equal(t, 2, RadiusKm(2500))
	assert.Equal(t, 1, RadiusKm(math.NaN()))
}

func TestNearby_RemoteSortedAndFiltered(t *testing.T) {
	remote := &fakeRemote{issues: fixture(t)}
	p, _, _ := newPlanner(t, remote)
	_, lat, lon := centerCell()

	results, src, err := p.Nearby(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, []string{"center", "near", "far-in-cell"}, ids(results))
	assert.LessOrEqual(t, results[0].DistanceMeters, results[1].DistanceMeters)
	assert.Contains(t, remote.cells, geohash.Encode(lat, lon))

	results, _, err = p.Nearby(context.Background(), lat, lon, 20000)
	require.NoError(t, err)
	assert.Equal(t, []string{"center", "near", "far-in-cell", "north-cell"}, ids(results))
}

func TestNearby_FallsBackWhenRemoteEmpty(t *testing.T) {
	_, lat, lon := centerCell()
	online := &fakeRemote{issues: fixture(t)}
	p, _, _ := newPlanner(t, online)
	want, _, err := p.Nearby(context.Background(), lat, lon, 500)
	require.NoError(t, err)

	offline, cache, _ := newPlanner(t, &fakeRemote{})
	require.NoError(t, cache.Save(fixture(t)))

	got, src, err := offline.Nearby(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, want, got)
}

func TestNearby_FallsBackOnRemoteError(t *testing.T) {
	_, lat, lon := centerCell()
	p, cache, _ := newPlanner(t, &fakeRemote{issuesErr: errors.New("unreachable")})
	require.NoError(t, cache.Save(fixture(t)))

	results, src, err := p.Nearby(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Len(t, results, 3)
}

func TestNearby_LocalIgnoresStaleGeohash(t *testing.T) {
	_, lat, lon := centerCell()
	rec := at("stale", lat, lon)
	rec.Geohash = "zzzzzzz"
	p, cache, _ := newPlanner(t, nil)
	require.NoError(t, cache.Save([]models.AnchorRecord{rec}))

	results, src, err := p.Nearby(context.Background(), lat, lon, 100)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, []string{"stale"}, ids(results))
}

func TestNearby_CapsResults(t *testing.T) {
	box, lat, lon := centerCell()
	h := box.MaxLat - box.MinLat
	var records []models.AnchorRecord
	for i := 0; i < 30; i++ {
		records = append(records, at(fmt.Sprintf("r%02d", i), box.MinLat+(float64(i)+0.5)/30*h, lon))
	}
	p, _, _ := newPlanner(t, &fakeRemote{issues: records})

	results, _, err := p.Nearby(context.Background(), lat, lon, 1000)
	require.NoError(t, err)
	require.Len(t, results, ResultLimit)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].DistanceMeters, results[i].DistanceMeters)
	}
}

func TestNearby_DegenerateRadius(t *testing.T) {
	_, lat, lon := centerCell()
	p, _, _ := newPlanner(t, &fakeRemote{issues: fixture(t)})

	results, _, err := p.Nearby(context.Background(), lat, lon, -10)
	require.NoError(t, err)
	assert.Equal(t, []string{"center"}, ids(results))
}

func TestNearby_CancelledContext(t *testing.T) {
	_, lat, lon := centerCell()
	p, _, _ := newPlanner(t, &fakeRemote{issuesErr: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Nearby(ctx, lat, lon, 500)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearbyAll_UnionsCollections(t *testing.T) {
	_, lat, lon := centerCell()
	surf := at("surface_wall", lat, lon+0.00001)
	remote := &fakeRemote{issues: fixture(t), surface: []models.AnchorRecord{surf}}
	p, _, _ := newPlanner(t, remote)

	results, err := p.NearbyAll(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"center", "surface_wall", "near", "far-in-cell"}, ids(results))
}

func TestNearbyAll_DegradesPerCollection(t *testing.T) {
	_, lat, lon := centerCell()
	surf := at("surface_wall", lat, lon)
	remote := &fakeRemote{issuesErr: errors.New("issues down"), surface: []models.AnchorRecord{surf}}
	p, _, _ := newPlanner(t, remote)

	results, err := p.NearbyAll(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"surface_wall"}, ids(results))

	remote.surfaceErr = errors.New("surface down")
	results, err = p.NearbyAll(context.Background(), lat, lon, 500)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSubmit_UploadsWithRecomputedGeohash(t *testing.T) {
	remote := &fakeRemote{}
	p, cache, pending := newPlanner(t, remote)

	rec, err := p.Submit(context.Background(), models.AnchorRecord{
		Latitude:    40.7128,
		Longitude:   -74.0060,
		Geohash:     "zzzzzzz",
		MessageText: "  flooded underpass ",
		Status:      "bogus",
	})
	require.NoError(t, err)
	p.Wait()

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, geohash.Encode(40.7128, -74.0060), rec.Geohash)
	assert.Equal(t, "flooded underpass", rec.MessageText)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.NotZero(t, rec.Timestamp)

	cached, err := cache.Load()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, rec, cached[0])

	require.Len(t, remote.upserted, 1)
	assert.Equal(t, rec.Geohash, remote.upserted[0].Geohash)

	n, err := pending.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmit_RejectsInvalidCoordinates(t *testing.T) {
	p, cache, _ := newPlanner(t, &fakeRemote{})
	_, err := p.Submit(context.Background(), models.AnchorRecord{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	cached, err := cache.Load()
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestSubmit_FailedUploadIsQueuedThenRetried(t *testing.T) {
	remote := &fakeRemote{upsertErr: errors.New("offline")}
	p, _, pending := newPlanner(t, remote)

	rec, err := p.Submit(context.Background(), models.AnchorRecord{ID: "X", Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	p.Wait()

	queued, err := pending.List()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "X", queued[0].ID)

	report, err := p.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Attempted: 1, Uploaded: 0, Remaining: 1}, report)

	remote.setUpsertErr(nil)
	report, err = p.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Attempted: 1, Uploaded: 1, Remaining: 0}, report)
	require.Len(t, remote.upserted, 1)
	assert.Equal(t, rec.ID, remote.upserted[0].ID)

	n, err := p.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmit_WithoutRemoteQueues(t *testing.T) {
	p, _, _ := newPlanner(t, nil)
	_, err := p.Submit(context.Background(), models.AnchorRecord{ID: "offline", Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	p.Wait()

	n, err := p.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, p.ClearPending())
	n, err = p.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListen_UsesFiveCharacterPrefix(t *testing.T) {
	remote := &fakeRemote{issues: fixture(t)}
	p, _, _ := newPlanner(t, remote)

	var got []models.AnchorRecord
	sub, err := p.Listen(context.Background(), 40.7128, -74.0060, func(recs []models.AnchorRecord) { got = recs })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, geohash.Prefix(40.7128, -74.0060), remote.prefix)
	assert.Len(t, remote.prefix, geohash.PrefixLength)
	assert.Len(t, got, len(remote.issues))
}

func TestNearby_RemoteTrustsStoredGeohash(t *testing.T) {
	_, lat, lon := centerCell()
	moved := at("moved", lat+0.02, lon)
	moved.Geohash = geohash.Encode(lat, lon)

	p, _, _ := newPlanner(t, &fakeRemote{issues: []models.AnchorRecord{moved}})
	results, src, err := p.Nearby(context.Background(), lat, lon, 5000)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, []string{"moved"}, ids(results))

	offline, cache, _ := newPlanner(t, nil)
	require.NoError(t, cache.Save([]models.AnchorRecord{moved}))
	results, src, err = offline.Nearby(context.Background(), lat, lon, 5000)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Empty(t, results)
}

func TestRetryPending_KeepsVersionQueuedDuringUpload(t *testing.T) {
	remote := &fakeRemote{}
	p, _, pending := newPlanner(t, remote)

	v1 := at("X", 1, 2)
	v1.MessageText = "v1"
	require.NoError(t, pending.Add(v1))

	v2 := v1
	v2.MessageText = "v2"
	remote.onUpsert = func(models.AnchorRecord) { require.NoError(t, pending.Add(v2)) }

	report, err := p.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Attempted: 1, Uploaded: 1, Remaining: 1}, report)

	queued, err := pending.List()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "v2", queued[0].MessageText)

	remote.onUpsert = nil
	report, err = p.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Attempted: 1, Uploaded: 1, Remaining: 0}, report)
	assert.Equal(t, "v2", remote.uploads()[1].MessageText)
}

func TestSubmit_RepeatedFailuresQueueOnce(t *testing.T) {
	remote := &fakeRemote{upsertErr: errors.New("offline")}
	p, _, pending := newPlanner(t, remote)

	for _, text := range []string{"first", "second"} {
		_, err := p.Submit(context.Background(), models.AnchorRecord{ID: "X", Latitude: 1, Longitude: 2, MessageText: text})
		require.NoError(t, err)
		p.Wait()
	}

	queued, err := pending.List()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "second", queued[0].MessageText)

	remote.setUpsertErr(nil)
	report, err := p.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Attempted: 1, Uploaded: 1, Remaining: 0}, report)
}

func TestGet_RemoteThenLocal(t *testing.T) {
	_, lat, lon := centerCell()
	remote := &fakeRemote{issues: []models.AnchorRecord{at("remote-only", lat, lon)}}
	p, cache, _ := newPlanner(t, remote)
	require.NoError(t, cache.Save([]models.AnchorRecord{at("local-only", lat, lon)}))

	rec, src, err := p.Get(context.Background(), "remote-only")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, "remote-only", rec.ID)

	rec, src, err = p.Get(context.Background(), "local-only")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, "local-only", rec.ID)

	_, _, err = p.Get(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)

	remote.issuesErr = errors.New("unreachable")
	rec, src, err = p.Get(context.Background(), "local-only")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
}

func TestRecent_LocalNewestFirstAndCapped(t *testing.T) {
	p, cache, _ := newPlanner(t, &fakeRemote{recentErr: errors.New("unreachable")})
	var records []models.AnchorRecord
	for i := 0; i < 5; i++ {
		r := at(fmt.Sprintf("r%d", i), 1, 1)
		r.Timestamp = int64(1000 + i)
		records = append(records, r)
	}
	require.NoError(t, cache.Save(records))

	got, src, err := p.Recent(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"r4", "r3", "r2"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestRecent_Remote(t *testing.T) {
	remote := &fakeRemote{issues: fixture(t)}
	p, _, _ := newPlanner(t, remote)

	got, src, err := p.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Len(t, got, len(remote.issues))
}

func TestUpdateStatus_WritesThrough(t *testing.T) {
	_, lat, lon := centerCell()
	remote := &fakeRemote{issues: []models.AnchorRecord{at("X", lat, lon)}}
	p, cache, _ := newPlanner(t, remote)

	rec, err := p.UpdateStatus(context.Background(), "X", models.StatusInProgress)
	require.NoError(t, err)
	p.Wait()
	assert.Equal(t, models.StatusInProgress, rec.Status)

	cached, err := cache.Load()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, models.StatusInProgress, cached[0].Status)

	ups := remote.uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, models.StatusInProgress, ups[0].Status)

	_, err = p.UpdateStatus(context.Background(), "X", models.Status("ARCHIVED"))
	assert.Error(t, err)
	_, err = p.UpdateStatus(context.Background(), "missing", models.StatusResolved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpvote_QueuesWhenUploadFails(t *testing.T) {
	p, cache, pending := newPlanner(t, nil)
	seed := at("X", 1, 1)
	seed.Upvotes = 2
	require.NoError(t, cache.Save([]models.AnchorRecord{seed}))

	rec, err := p.Upvote(context.Background(), "X")
	require.NoError(t, err)
	p.Wait()
	assert.Equal(t, 3, rec.Upvotes)

	queued, err := pending.List()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, 3, queued[0].Upvotes)
}
