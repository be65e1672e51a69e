// Package remote implements the issues, surface_anchors and
// authority_actions collections on MongoDB.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicanchor-be/geohash"
	"civicanchor-be/logger"
	"civicanchor-be/metrics"
	"civicanchor-be/models"
)

const (
	IssuesCollection  = "issues"
	SurfaceCollection = "surface_anchors"
	ActionsCollection = "authority_actions"

	// ListingLimit caps issue and surface listings; ActionsListingLimit caps
	// authority actions.
	ListingLimit        int64 = 500
	ActionsListingLimit int64 = 200
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = logger.OrDefault(l) }
}

// WithTimeout bounds every one-shot query and write.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPollInterval sets how often listeners poll when change streams are
// unavailable.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// Store wraps the three collections.
type Store struct {
	issues  *mongo.Collection
	surface *mongo.Collection
	actions *mongo.Collection

	log          *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// New binds a Store to db.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		issues:       db.Collection(IssuesCollection),
		surface:      db.Collection(SurfaceCollection),
		actions:      db.Collection(ActionsCollection),
		log:          slog.Default(),
		timeout:      10 * time.Second,
		pollInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GeohashInFilter matches documents whose geohash is one of hashes.
func GeohashInFilter(hashes []string) bson.M {
	return bson.M{"geohash": bson.M{"$in": hashes}}
}

// GeohashRangeFilter matches documents whose geohash starts with prefix.
func GeohashRangeFilter(prefix string) bson.M {
	return bson.M{"geohash": bson.M{"$gte": prefix, "$lt": geohash.RangeEnd(prefix)}}
}

// ListingOptions orders by timestamp descending and caps at limit.
func ListingOptions(limit int64) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
}

func parseIssue(doc bson.M) (models.AnchorRecord, error) {
	return models.AnchorFromDocument(doc)
}

func parseSurface(doc bson.M) (models.AnchorRecord, error) {
	s, err := models.SurfaceAnchorFromDocument(doc)
	if err != nil {
		return models.AnchorRecord{}, err
	}
	return s.ToAnchorRecord(), nil
}

func parseAction(doc bson.M) (models.AuthorityAction, error) {
	return models.ActionFromDocument(doc)
}

// FindIssuesByGeohash returns issues in any of the candidate cells.
func (s *Store) FindIssuesByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error) {
	return s.findByGeohash(ctx, s.issues, hashes, parseIssue)
}

// FindSurfaceByGeohash returns surface anchors in any of the candidate
// cells, normalized into AnchorRecord shape.
func (s *Store) FindSurfaceByGeohash(ctx context.Context, hashes []string) ([]models.AnchorRecord, error) {
	return s.findByGeohash(ctx, s.surface, hashes, parseSurface)
}

func (s *Store) findByGeohash(ctx context.Context, coll *mongo.Collection, hashes []string, parse func(bson.M) (models.AnchorRecord, error)) ([]models.AnchorRecord, error) {
	if len(hashes) == 0 {
		return []models.AnchorRecord{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := coll.Find(ctx, GeohashInFilter(hashes))
	if err != nil {
		metrics.RemoteFetchErrorsTotal.WithLabelValues(coll.Name()).Inc()
		return nil, fmt.Errorf("query %s: %w", coll.Name(), err)
	}
	return decodeAll(ctx, cursor, coll.Name(), parse, s.log)
}

// FindIssueByID returns the issue stored under id. ok is false when there is
// none or the stored document does not parse.
func (s *Store) FindIssueByID(ctx context.Context, id string) (models.AnchorRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc bson.M
	err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.AnchorRecord{}, false, nil
	}
	if err != nil {
		metrics.RemoteFetchErrorsTotal.WithLabelValues(IssuesCollection).Inc()
		return models.AnchorRecord{}, false, fmt.Errorf("find issue %s: %w", id, err)
	}
	rec, err := parseIssue(doc)
	if err != nil {
		s.log.Warn("remote_document_skipped", "collection", IssuesCollection, "error", err)
		metrics.MalformedRecordsTotal.WithLabelValues(IssuesCollection).Inc()
		return models.AnchorRecord{}, false, nil
	}
	return rec, true, nil
}

// FindRecentIssues returns up to limit issues, newest first.
func (s *Store) FindRecentIssues(ctx context.Context, limit int64) ([]models.AnchorRecord, error) {
	if limit <= 0 || limit > ListingLimit {
		limit = ListingLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.issues.Find(ctx, bson.M{}, ListingOptions(limit))
	if err != nil {
		metrics.RemoteFetchErrorsTotal.WithLabelValues(IssuesCollection).Inc()
		return nil, fmt.Errorf("query %s: %w", IssuesCollection, err)
	}
	return decodeAll(ctx, cursor, IssuesCollection, parseIssue, s.log)
}

// UpsertIssue writes rec under its own id.
func (s *Store) UpsertIssue(ctx context.Context, rec models.AnchorRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.issues.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert issue %s: %w", rec.ID, err)
	}
	return nil
}

// InsertAction records an authority action.
func (s *Store) InsertAction(ctx context.Context, a models.AuthorityAction) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.actions.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// decodeAll drains cursor, skipping documents that fail to decode or parse.
func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor, source string, parse func(bson.M) (T, error), log *slog.Logger) ([]T, error) {
	defer cursor.Close(ctx)

	out := []T{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			log.Warn("remote_document_skipped", "collection", source, "error", err)
			metrics.MalformedRecordsTotal.WithLabelValues(source).Inc()
			continue
		}
		item, err := parse(doc)
		if err != nil {
			log.Warn("remote_document_skipped", "collection", source, "error", err)
			metrics.MalformedRecordsTotal.WithLabelValues(source).Inc()
			continue
		}
		out = append(out, item)
	}
	if err := cursor.Err(); err != nil {
		metrics.RemoteFetchErrorsTotal.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return out, nil
}
