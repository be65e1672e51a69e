package remote

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"civicanchor-be/metrics"
	"civicanchor-be/models"
	"civicanchor-be/stream"
)

// snapshotListener re-runs one listing query and hands the full result to
// the subscriber on start and after every change on the collection.
type snapshotListener[T any] struct {
	coll         *mongo.Collection
	filter       bson.M
	limit        int64
	parse        func(bson.M) (T, error)
	log          *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// Listen starts the listener goroutine. Query failures are logged and the
// subscriber keeps its previous snapshot.
func (l *snapshotListener[T]) Listen(ctx context.Context, onSnapshot func([]T)) (stream.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stream.Go(ctx, func(ctx context.Context) { l.run(ctx, onSnapshot) }), nil
}

func (l *snapshotListener[T]) run(ctx context.Context, onSnapshot func([]T)) {
	l.deliver(ctx, onSnapshot)

	cs, err := l.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("change_stream_unavailable", "collection", l.coll.Name(), "error", err, "poll_interval", l.pollInterval)
		l.poll(ctx, onSnapshot)
		return
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		l.deliver(ctx, onSnapshot)
	}
	if ctx.Err() != nil {
		return
	}
	l.log.Warn("change_stream_closed", "collection", l.coll.Name(), "error", cs.Err())
	l.poll(ctx, onSnapshot)
}

func (l *snapshotListener[T]) poll(ctx context.Context, onSnapshot func([]T)) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.deliver(ctx, onSnapshot)
		}
	}
}

func (l *snapshotListener[T]) deliver(ctx context.Context, onSnapshot func([]T)) {
	qctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cursor, err := l.coll.Find(qctx, l.filter, ListingOptions(l.limit))
	if err != nil {
		if ctx.Err() == nil {
			metrics.RemoteFetchErrorsTotal.WithLabelValues(l.coll.Name()).Inc()
			l.log.Warn("listener_query_failed", "collection", l.coll.Name(), "error", err)
		}
		return
	}
	items, err := decodeAll(qctx, cursor, l.coll.Name(), l.parse, l.log)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("listener_query_failed", "collection", l.coll.Name(), "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	onSnapshot(items)
}

func newListener[T any](s *Store, coll *mongo.Collection, filter bson.M, limit int64, parse func(bson.M) (T, error)) *snapshotListener[T] {
	return &snapshotListener[T]{
		coll:         coll,
		filter:       filter,
		limit:        limit,
		parse:        parse,
		log:          s.log,
		timeout:      s.timeout,
		pollInterval: s.pollInterval,
	}
}

// IssuesListener streams the 500 most recent issues.
func (s *Store) IssuesListener() stream.Listener[models.AnchorRecord] {
	return newListener(s, s.issues, bson.M{}, ListingLimit, parseIssue)
}

// SurfaceListener streams the 500 most recent surface anchors in
// AnchorRecord shape.
func (s *Store) SurfaceListener() stream.Listener[models.AnchorRecord] {
	return newListener(s, s.surface, bson.M{}, ListingLimit, parseSurface)
}

// ActionsListener streams the 200 most recent authority actions.
func (s *Store) ActionsListener() stream.Listener[models.AuthorityAction] {
	return newListener(s, s.actions, bson.M{}, ActionsListingLimit, parseAction)
}

// IssuesInRange streams the most recent issues whose geohash starts with
// prefix.
func (s *Store) IssuesInRange(prefix string) stream.Listener[models.AnchorRecord] {
	return newListener(s, s.issues, GeohashRangeFilter(prefix), ListingLimit, parseIssue)
}
