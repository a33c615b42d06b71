package directors

import (
	"testing"

	"dualdb/src/engine"
	"dualdb/src/schema"
	"dualdb/src/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSchemaYAML = `
tables:
  - name: team
    columns:
      - name: team_id
        type: int
        required: true
      - name: name
        type: string
        required: true
        unique: true
      - name: points
        type: int
    primary_key: [team_id]

  - name: driver
    columns:
      - name: driver_id
        type: int
        required: true
      - name: name
        type: string
        required: true
      - name: points
        type: int
      - name: team_id
        type: int
    primary_key: [driver_id]
    foreign_keys:
      - name: fk_driver_team
        columns: [team_id]
        references: team
        ref_columns: [team_id]
`

func setupManager(t *testing.T) *ServiceManager {
	t.Helper()

	ResetServiceManager()
	t.Cleanup(ResetServiceManager)

	sch, err := schema.LoadSchema([]byte(testSchemaYAML))
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	s := store.NewStore(sch, logger)

	txn := s.Begin()
	require.NoError(t, txn.Insert("team", store.Row{"team_id": 1, "name": "Red Bull", "points": 100}))
	require.NoError(t, txn.Insert("team", store.Row{"team_id": 2, "name": "Ferrari", "points": 90}))
	require.NoError(t, txn.Insert("driver", store.Row{"driver_id": 101, "name": "Max Verstappen", "points": 150, "team_id": 1}))
	require.NoError(t, txn.Insert("driver", store.Row{"driver_id": 103, "name": "Charles Leclerc", "points": 110, "team_id": 2}))
	require.NoError(t, txn.Commit())

	return InitServiceManager(s, NewViewService(s, logger), logger)
}

func run(t *testing.T, sm *ServiceManager, command string) *engine.CommandResponse {
	t.Helper()
	resp, err := CommandDirector(sm, command, zap.NewNop().Sugar())
	require.NoError(t, err, "command: %s", command)
	return resp
}

func defineTeamView(t *testing.T, sm *ServiceManager) {
	t.Helper()
	run(t, sm, `CREATE DUALITY VIEW "team_dv" AS team {
	  _id: team_id,
	  name,
	  points,
	  driver: driver @insert @update [ {
	    driverId: driver_id,
	    name,
	    points
	  } ]
	}`)
}

func resultDoc(t *testing.T, resp *engine.CommandResponse) map[string]interface{} {
	t.Helper()
	doc, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	return doc
}

func TestCreateAndListViews(t *testing.T) {
	sm := setupManager(t)

	resp := run(t, sm, `CREATE DUALITY VIEW "team_dv" AS team { _id: team_id, name, points };`)
	assert.Equal(t, 1, resp.ResultCount)
	assert.Contains(t, resp.Result.(string), "team_dv")

	resp = run(t, sm, `SELECT VIEWS`)
	assert.Equal(t, 1, resp.ResultCount)
	assert.Equal(t, []string{"team_dv"}, resp.Result)
}

func TestSelectByKey(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `SELECT FROM "team_dv" KEY {"_id": 1}`)
	doc := resultDoc(t, resp)
	assert.Equal(t, "Red Bull", doc["name"])

	meta, ok := doc[engine.MetadataField].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, meta["etag"])
}

func TestSelectWithClauses(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `SELECT FROM "team_dv" WHERE points >= 90 ORDER BY points DESC KEEP _id, name`)
	require.Equal(t, 2, resp.ResultCount)

	docs := resp.Result.([]map[string]interface{})
	assert.Equal(t, "Red Bull", docs[0]["name"])
	assert.Equal(t, "Ferrari", docs[1]["name"])
	assert.NotContains(t, docs[0], "points", "KEEP projects the document down")
	assert.Contains(t, docs[0], engine.MetadataField)
}

func TestInsertCommand(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `INSERT INTO "team_dv" {"_id": 3, "name": "McLaren", "points": 60, "driver": []}`)
	doc := resultDoc(t, resp)
	assert.Equal(t, int64(3), doc["_id"])

	row, ok := sm.Store.Get("team", store.Key{"team_id": 3})
	require.True(t, ok)
	assert.Equal(t, "McLaren", row["name"])
}

func TestReplaceCommand(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `REPLACE INTO "team_dv" {"_id": 2, "name": "Ferrari", "points": 95,
	  "driver": [{"driverId": 103, "name": "Charles Leclerc", "points": 110}]}`)
	doc := resultDoc(t, resp)
	assert.Equal(t, int64(95), doc["points"])
}

func TestPatchCommand(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `PATCH "team_dv" KEY {"_id": 1} WITH {"points": 120}`)
	doc := resultDoc(t, resp)
	assert.Equal(t, int64(120), doc["points"])
	assert.Equal(t, "Red Bull", doc["name"])
}

func TestTransformCommands(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `TRANSFORM "team_dv" KEY {"_id": 1} SET driver[driverId=101].points TO 160`)
	doc := resultDoc(t, resp)
	drivers := doc["driver"].([]interface{})
	elem := drivers[0].(map[string]interface{})
	assert.Equal(t, int64(160), elem["points"])

	resp = run(t, sm, `TRANSFORM "team_dv" KEY {"_id": 1} SET points TO 101`)
	assert.Equal(t, int64(101), resultDoc(t, resp)["points"])
}

func TestTransformWithStaleTag(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	_, err := CommandDirector(sm, `TRANSFORM "team_dv" KEY {"_id": 1} ETAG "bogus" SET points TO 1`, zap.NewNop().Sugar())
	var conc *engine.ConcurrencyError
	require.ErrorAs(t, err, &conc)
}

func TestDeleteCommand(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	resp := run(t, sm, `SELECT FROM "team_dv" KEY {"_id": 2}`)
	meta := resultDoc(t, resp)[engine.MetadataField].(map[string]interface{})
	etag := meta["etag"].(string)

	run(t, sm, `DELETE FROM "team_dv" KEY {"_id": 2} ETAG "`+etag+`"`)

	_, err := CommandDirector(sm, `SELECT FROM "team_dv" KEY {"_id": 2}`, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, engine.ErrDocumentNotFound)
}

func TestDeleteWithStaleTag(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	_, err := CommandDirector(sm, `DELETE FROM "team_dv" KEY {"_id": 1} ETAG "stale"`, zap.NewNop().Sugar())
	var conc *engine.ConcurrencyError
	require.ErrorAs(t, err, &conc)

	_, ok := sm.Store.Get("team", store.Key{"team_id": 1})
	assert.True(t, ok)
}

func TestPermissionErrorSurfaces(t *testing.T) {
	sm := setupManager(t)

	run(t, sm, `CREATE DUALITY VIEW "readonly_dv" AS team { _id: team_id, name @noupdate, points }`)

	_, err := CommandDirector(sm, `REPLACE INTO "readonly_dv" {"_id": 1, "name": "Renamed", "points": 1}`, zap.NewNop().Sugar())
	var perr *engine.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "update", perr.Op)
}

func TestUnknownViewAndCommand(t *testing.T) {
	sm := setupManager(t)

	_, err := CommandDirector(sm, `SELECT FROM "ghost_dv" KEY {"_id": 1}`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = CommandDirector(sm, `FROBNICATE EVERYTHING`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command format")
}

func TestMalformedSelectTail(t *testing.T) {
	sm := setupManager(t)
	defineTeamView(t, sm)

	_, err := CommandDirector(sm, `SELECT FROM "team_dv" points > 10`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed SELECT clause")
}
