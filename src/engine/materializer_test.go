package engine

import (
	"testing"

	"dualdb/src/store"
	"dualdb/src/views"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMaterializeTeamDocument(t *testing.T) {
	fix := newF1Fixture(t)

	doc := fix.doc(t, "team_dv", store.Key{"team_id": 1})

	assert.Equal(t, int64(1), doc.Fields["_id"])
	assert.Equal(t, "Red Bull", doc.Fields["name"])
	assert.Equal(t, int64(100), doc.Fields["points"])
	require.NotEmpty(t, doc.Etag)

	drivers, ok := doc.Fields["driver"].([]interface{})
	require.True(t, ok)
	require.Len(t, drivers, 2)

	// array elements come back in primary key order
	first := drivers[0].(map[string]interface{})
	second := drivers[1].(map[string]interface{})
	assert.Equal(t, int64(101), first["driverId"])
	assert.Equal(t, "Max Verstappen", first["name"])
	assert.Equal(t, int64(102), second["driverId"])
}

func TestMaterializeUnnestSplicesFields(t *testing.T) {
	fix := newF1Fixture(t)

	doc := fix.doc(t, "driver_dv", store.Key{"driver_id": 103})

	assert.Equal(t, "Charles Leclerc", doc.Fields["name"])
	assert.Equal(t, int64(2), doc.Fields["teamId"])
	assert.Equal(t, "Ferrari", doc.Fields["teamName"])
	_, nested := doc.Fields["team"]
	assert.False(t, nested, "unnested child must not appear as a nested object")
}

func TestMaterializeNullReference(t *testing.T) {
	fix := newF1Fixture(t)

	txn := fix.store.Begin()
	require.NoError(t, txn.Update("driver", store.Key{"driver_id": 104}, store.Row{"team_id": nil}))
	require.NoError(t, txn.Commit())

	doc := fix.doc(t, "driver_dv", store.Key{"driver_id": 104})
	assert.Nil(t, doc.Fields["teamId"])
	assert.Nil(t, doc.Fields["teamName"])
}

func TestMaterializeByKeyNotFound(t *testing.T) {
	fix := newF1Fixture(t)

	_, err := fix.mat.MaterializeByKey(fix.plan(t, "team_dv"), store.Key{"team_id": 999})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMetadataCarriesTag(t *testing.T) {
	fix := newF1Fixture(t)

	doc := fix.doc(t, "team_dv", store.Key{"team_id": 1})
	out := doc.AsMap()

	meta, ok := out[MetadataField].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, doc.Etag, meta["etag"])
}

func TestTagStableAcrossReads(t *testing.T) {
	fix := newF1Fixture(t)

	a := fix.doc(t, "team_dv", store.Key{"team_id": 1})
	b := fix.doc(t, "team_dv", store.Key{"team_id": 1})
	assert.Equal(t, a.Etag, b.Etag)

	// a change to an unrelated document leaves the tag alone
	txn := fix.store.Begin()
	require.NoError(t, txn.Update("team", store.Key{"team_id": 2}, store.Row{"points": 95}))
	require.NoError(t, txn.Commit())

	c := fix.doc(t, "team_dv", store.Key{"team_id": 1})
	assert.Equal(t, a.Etag, c.Etag)
}

func TestTagChangesWithContent(t *testing.T) {
	fix := newF1Fixture(t)

	before := fix.doc(t, "team_dv", store.Key{"team_id": 1})

	txn := fix.store.Begin()
	require.NoError(t, txn.Update("driver", store.Key{"driver_id": 102}, store.Row{"points": 85}))
	require.NoError(t, txn.Commit())

	after := fix.doc(t, "team_dv", store.Key{"team_id": 1})
	assert.NotEqual(t, before.Etag, after.Etag, "child row changes must change the document tag")
}

func TestNocheckFieldExcludedFromTag(t *testing.T) {
	fix := newF1Fixture(t)
	logger := zap.NewNop().Sugar()

	def, err := views.ParseCreateViewCommand(`CREATE DUALITY VIEW "team_tag_dv" AS team {
	  _id: team_id,
	  name,
	  points @nocheck
	}`, logger)
	require.NoError(t, err)
	plan, err := views.Compile(def, fix.schema, logger)
	require.NoError(t, err)

	before, err := fix.mat.MaterializeByKey(plan, store.Key{"team_id": 1})
	require.NoError(t, err)

	txn := fix.store.Begin()
	require.NoError(t, txn.Update("team", store.Key{"team_id": 1}, store.Row{"points": 130}))
	require.NoError(t, txn.Commit())

	after, err := fix.mat.MaterializeByKey(plan, store.Key{"team_id": 1})
	require.NoError(t, err)
	assert.Equal(t, before.Etag, after.Etag)
}

func TestCursorIsLazyAndRestartable(t *testing.T) {
	fix := newF1Fixture(t)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{})
	require.NoError(t, err)

	first, err := cursor.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.Fields["_id"])

	// a write landing between Next calls is visible to the cursor
	txn := fix.store.Begin()
	require.NoError(t, txn.Update("team", store.Key{"team_id": 2}, store.Row{"points": 99}))
	require.NoError(t, txn.Commit())

	second, err := cursor.Next()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, int64(99), second.Fields["points"])

	end, err := cursor.Next()
	require.NoError(t, err)
	assert.Nil(t, end)
}

func TestCursorSkipsDeletedRoots(t *testing.T) {
	fix := newF1Fixture(t)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{})
	require.NoError(t, err)

	require.NoError(t, fix.dec.Delete(fix.plan(t, "team_dv"), store.Key{"team_id": 2}, ""))

	first, err := cursor.Next()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cursor.Next()
	require.NoError(t, err)
	assert.Nil(t, second, "a root deleted after the cursor opened is skipped")
}

func TestPredicateFiltersDocuments(t *testing.T) {
	fix := newF1Fixture(t)

	pred, err := ParsePredicate(`driver.points > 100`)
	require.NoError(t, err)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), pred, ReadOptions{})
	require.NoError(t, err)
	docs, err := cursor.All()
	require.NoError(t, err)

	require.Len(t, docs, 2, "both teams have a driver above 100 points")

	pred, err = ParsePredicate(`name LIKE "Red%" AND points >= 100`)
	require.NoError(t, err)
	cursor, err = fix.mat.Materialize(fix.plan(t, "team_dv"), pred, ReadOptions{})
	require.NoError(t, err)
	docs, err = cursor.All()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Red Bull", docs[0].Fields["name"])
}

func TestPredicateGroupsEvaluateLeftToRight(t *testing.T) {
	fix := newF1Fixture(t)

	pred, err := ParsePredicate(`(name = "Ferrari" OR name = "Red Bull") AND points < 95`)
	require.NoError(t, err)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), pred, ReadOptions{})
	require.NoError(t, err)
	docs, err := cursor.All()
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "Ferrari", docs[0].Fields["name"])
}

func TestOrderByPath(t *testing.T) {
	fix := newF1Fixture(t)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{OrderBy: "points", Descending: true})
	require.NoError(t, err)
	docs, err := cursor.All()
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "Red Bull", docs[0].Fields["name"])
	assert.Equal(t, "Ferrari", docs[1].Fields["name"])
}

func TestKeepProjectionPreservesTag(t *testing.T) {
	fix := newF1Fixture(t)

	full := fix.doc(t, "team_dv", store.Key{"team_id": 1})

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{Keep: []string{"_id", "driver.driverId"}})
	require.NoError(t, err)
	docs, err := cursor.All()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	projected := docs[0]
	assert.Equal(t, full.Etag, projected.Etag, "projection must not disturb the version tag")
	assert.Contains(t, projected.Fields, "_id")
	assert.NotContains(t, projected.Fields, "name")
	assert.NotContains(t, projected.Fields, "points")

	drivers := projected.Fields["driver"].([]interface{})
	elem := drivers[0].(map[string]interface{})
	assert.Contains(t, elem, "driverId")
	assert.NotContains(t, elem, "name")
}

func TestRemoveProjection(t *testing.T) {
	fix := newF1Fixture(t)

	cursor, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{Remove: []string{"driver", "points"}})
	require.NoError(t, err)
	docs, err := cursor.All()
	require.NoError(t, err)

	for _, doc := range docs {
		assert.NotContains(t, doc.Fields, "driver")
		assert.NotContains(t, doc.Fields, "points")
		assert.Contains(t, doc.Fields, "name")
	}
}

func TestKeepAndRemoveAreExclusive(t *testing.T) {
	fix := newF1Fixture(t)

	_, err := fix.mat.Materialize(fix.plan(t, "team_dv"), nil, ReadOptions{Keep: []string{"_id"}, Remove: []string{"name"}})
	assert.Error(t, err)
}

func TestEmptyChildArrayMaterializesAsEmpty(t *testing.T) {
	fix := newF1Fixture(t)

	inserted, err := fix.dec.Insert(fix.plan(t, "team_dv"), map[string]interface{}{
		"_id": 3, "name": "McLaren", "points": 60,
	})
	require.NoError(t, err)

	drivers, ok := inserted.Fields["driver"].([]interface{})
	require.True(t, ok, "childless to-many key must still be an array")
	assert.Empty(t, drivers)
}
