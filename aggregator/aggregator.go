package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"civicanchor-be/logger"
	"civicanchor-be/metrics"
	"civicanchor-be/models"
	"civicanchor-be/stream"
)

// Source names a snapshot feed.
type Source string

const (
	SourceIssues  Source = "issues"
	SourceSurface Source = "surface_anchors"
	SourceActions Source = "authority_actions"
)

var (
	// ErrAlreadyStarted is returned by Start on a running aggregator.
	ErrAlreadyStarted = errors.New("aggregator already started")
	// ErrStopped is returned by a Start that Stop overtook.
	ErrStopped = errors.New("aggregator stopped during start")
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = logger.OrDefault(l) }
}

// WithClock sets the clock stamped on each recompute.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator keeps the latest bounded snapshot of each source and recomputes
// the dashboard whenever any one of them changes. Sources are not
// synchronized with each other: a recompute uses whatever the other two
// sources last delivered, which may still be empty right after Start.
//
// Each source's callback is the only writer of that source's snapshot.
// Recomputes are serialized so the newest one always sees every snapshot
// stored before it began.
type Aggregator struct {
	issues  stream.Listener[models.AnchorRecord]
	surface stream.Listener[models.AnchorRecord]
	actions stream.Listener[models.AuthorityAction]

	log *slog.Logger
	now func() time.Time

	issueSnap   atomic.Pointer[[]models.AnchorRecord]
	surfaceSnap atomic.Pointer[[]models.AnchorRecord]
	actionSnap  atomic.Pointer[[]models.AuthorityAction]
	latest      atomic.Pointer[models.ImpactStats]

	recomputeMu sync.Mutex

	mu        sync.Mutex
	subs      []stream.Subscription
	started   bool
	gen       uint64 // bumped by Stop
	observers map[int]chan models.ImpactStats
	nextID    int
}

// New returns an aggregator over the three listeners. Nil listeners are
// allowed; that source simply stays empty.
func New(issues, surface stream.Listener[models.AnchorRecord], actions stream.Listener[models.AuthorityAction], opts ...Option) *Aggregator {
	a := &Aggregator{
		issues:    issues,
		surface:   surface,
		actions:   actions,
		log:       slog.Default(),
		now:       time.Now,
		observers: make(map[int]chan models.ImpactStats),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start subscribes to every configured source. If any subscription fails the
// ones already opened are torn down. Listeners may deliver their first
// snapshot before Start returns.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	gen := a.gen
	a.mu.Unlock()

	var subs []stream.Subscription
	fail := func(src Source, err error) error {
		for _, s := range subs {
			s.Unsubscribe()
		}
		a.mu.Lock()
		if a.gen == gen {
			a.started = false
		}
		a.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", src, err)
	}

	if a.issues != nil {
		s, err := a.issues.Listen(ctx, a.UpdateIssues)
		if err != nil {
			return fail(SourceIssues, err)
		}
		subs = append(subs, s)
	}
	if a.surface != nil {
		s, err := a.surface.Listen(ctx, a.UpdateSurface)
		if err != nil {
			return fail(SourceSurface, err)
		}
		subs = append(subs, s)
	}
	if a.actions != nil {
		s, err := a.actions.Listen(ctx, a.UpdateActions)
		if err != nil {
			return fail(SourceActions, err)
		}
		subs = append(subs, s)
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		return ErrStopped
	}
	a.subs = subs
	a.mu.Unlock()
	a.log.Info("aggregator_started", "sources", len(subs))
	return nil
}

// Stop tears down every subscription and closes observer channels. It is safe
// to call more than once.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.started = false
	a.gen++
	for id, ch := range a.observers {
		close(ch)
		delete(a.observers, id)
	}
	a.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	if len(subs) > 0 {
		a.log.Info("aggregator_stopped")
	}
}

// UpdateIssues replaces the issues snapshot and recomputes.
func (a *Aggregator) UpdateIssues(records []models.AnchorRecord) {
	snap := boundRecords(records, IssuesCap)
	a.issueSnap.Store(&snap)
	a.recompute(SourceIssues)
}

// UpdateSurface replaces the surface-anchor snapshot and recomputes.
func (a *Aggregator) UpdateSurface(records []models.AnchorRecord) {
	snap := boundRecords(records, SurfaceCap)
	a.surfaceSnap.Store(&snap)
	a.recompute(SourceSurface)
}

// UpdateActions replaces the authority-action snapshot and recomputes.
func (a *Aggregator) UpdateActions(actions []models.AuthorityAction) {
	snap := recentFirst(actions)
	if len(snap) > ActionsCap {
		snap = snap[:ActionsCap]
	}
	a.actionSnap.Store(&snap)
	a.recompute(SourceActions)
}

// Snapshot returns the current view of the three sources.
func (a *Aggregator) Snapshot() Snapshot {
	var s Snapshot
	if p := a.issueSnap.Load(); p != nil {
		s.Issues = *p
	}
	if p := a.surfaceSnap.Load(); p != nil {
		s.Surface = *p
	}
	if p := a.actionSnap.Load(); p != nil {
		s.Actions = *p
	}
	return s
}

// Latest returns the most recent stats. ok is false before the first
// recompute.
func (a *Aggregator) Latest() (models.ImpactStats, bool) {
	p := a.latest.Load()
	if p == nil {
		return models.ImpactStats{}, false
	}
	return *p, true
}

// Subscribe returns a channel that receives every recompute, primed with the
// current stats when there are any. Slow readers only see the newest stats.
// The cancel func removes the observer and closes the channel.
func (a *Aggregator) Subscribe() (<-chan models.ImpactStats, func()) {
	ch := make(chan models.ImpactStats, 1)

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.observers[id] = ch
	if p := a.latest.Load(); p != nil {
		ch <- *p
	}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if c, ok := a.observers[id]; ok {
			close(c)
			delete(a.observers, id)
		}
	}
	return ch, cancel
}

func (a *Aggregator) recompute(src Source) {
	a.recomputeMu.Lock()
	defer a.recomputeMu.Unlock()

	start := time.Now()
	stats := Compute(a.Snapshot(), a.now())
	a.latest.Store(&stats)

	metrics.RecomputesTotal.WithLabelValues(string(src)).Inc()
	metrics.RecomputeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.TotalReports.Set(float64(stats.TotalReports))
	metrics.RedZones.Set(float64(stats.RedZones))
	a.log.Debug("impact_recomputed", "source", src, "reports", stats.TotalReports, "red_zones", stats.RedZones)

	a.publish(stats)
}

func (a *Aggregator) publish(stats models.ImpactStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.observers {
		select {
		case <-ch:
		default:
		}
		ch <- stats
	}
}

// boundRecords copies records newest first and truncates to limit.
func boundRecords(records []models.AnchorRecord, limit int) []models.AnchorRecord {
	out := make([]models.AnchorRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
