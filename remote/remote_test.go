package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"civicanchor-be/geohash"
	"civicanchor-be/models"
)

func TestGeohashInFilter(t *testing.T) {
	f := GeohashInFilter([]string{"dr5regw", "dr5regy"})
	inner, ok := f["geohash"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, []string{"dr5regw", "dr5regy"}, inner["$in"])
}

func TestGeohashRangeFilter(t *testing.T) {
	f := GeohashRangeFilter("dr5re")
	inner, ok := f["geohash"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "dr5re", inner["$gte"])
	assert.Equal(t, "dr5re"+geohash.RangeSentinel, inner["$lt"])
}

func TestListingOptions(t *testing.T) {
	opts := ListingOptions(ListingLimit)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(500), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "timestamp", Value: -1}}, opts.Sort)
}

func TestParseSurface_PrefixesID(t *testing.T) {
	rec, err := parseSurface(bson.M{"_id": "abc", "latitude": 1.5, "longitude": 2.5, "messageText": "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.SurfacePrefix+"abc", rec.ID)
	assert.Equal(t, models.StatusPending, rec.Status)

	_, err = parseSurface(bson.M{"latitude": 1.5})
	assert.ErrorIs(t, err, models.ErrMalformedRecord)
}

func TestParseIssue(t *testing.T) {
	rec, err := parseIssue(bson.M{"_id": "i1", "latitude": 1.0, "longitude": 1.0, "status": "resolved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, rec.Status)
}
