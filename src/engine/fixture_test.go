package engine

import (
	"testing"

	"dualdb/src/schema"
	"dualdb/src/store"
	"dualdb/src/views"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Formula 1 fixture: teams, drivers, races and per-race results, with
// three views over them.

const f1SchemaYAML = `
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
        unique: true
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

  - name: race
    columns:
      - name: race_id
        type: int
        required: true
      - name: name
        type: string
        required: true
        unique: true
      - name: laps
        type: int
      - name: race_date
        type: string
    primary_key: [race_id]

  - name: driver_race_map
    columns:
      - name: driver_race_map_id
        type: int
        required: true
      - name: race_id
        type: int
        required: true
      - name: driver_id
        type: int
        required: true
      - name: position
        type: int
    primary_key: [driver_race_map_id]
    foreign_keys:
      - name: fk_drm_race
        columns: [race_id]
        references: race
        ref_columns: [race_id]
      - name: fk_drm_driver
        columns: [driver_id]
        references: driver
        ref_columns: [driver_id]
    unique:
      - name: uq_drm_race_driver
        columns: [race_id, driver_id]
`

const teamViewDDL = `
CREATE DUALITY VIEW "team_dv" AS team {
  _id: team_id,
  name,
  points,
  driver: driver @insert @update [ {
    driverId: driver_id,
    name,
    points
  } ]
}`

const driverViewDDL = `
CREATE DUALITY VIEW "driver_dv" AS driver {
  _id: driver_id,
  name,
  points,
  team @unnest @update {
    teamId: team_id,
    teamName: name
  }
}`

const raceViewDDL = `
CREATE DUALITY VIEW "race_dv" AS race {
  _id: race_id,
  name,
  laps @noupdate,
  raceDate: race_date,
  result: driver_race_map @insert @update @delete [ {
    resultId: driver_race_map_id,
    position,
    driver @unnest {
      driverId: driver_id,
      driverName: name
    }
  } ]
}`

type f1Fixture struct {
	schema *schema.Schema
	store  *store.Store
	mat    *Materializer
	dec    *Decomposer
	plans  map[string]*views.MappingPlan
}

func newF1Fixture(t *testing.T) *f1Fixture {
	t.Helper()
	logger := zap.NewNop().Sugar()

	sch, err := schema.LoadSchema([]byte(f1SchemaYAML))
	require.NoError(t, err)

	st := store.NewStore(sch, logger)

	fix := &f1Fixture{
		schema: sch,
		store:  st,
		mat:    NewMaterializer(st, logger),
		dec:    NewDecomposer(st, logger),
		plans:  make(map[string]*views.MappingPlan),
	}

	for _, ddl := range []string{teamViewDDL, driverViewDDL, raceViewDDL} {
		def, err := views.ParseCreateViewCommand(ddl, logger)
		require.NoError(t, err)
		plan, err := views.Compile(def, sch, logger)
		require.NoError(t, err)
		fix.plans[plan.ViewName] = plan
	}

	fix.seed(t)
	return fix
}

func (f *f1Fixture) seed(t *testing.T) {
	t.Helper()
	txn := f.store.Begin()

	rows := []struct {
		table string
		row   store.Row
	}{
		{"team", store.Row{"team_id": 1, "name": "Red Bull", "points": 100}},
		{"team", store.Row{"team_id": 2, "name": "Ferrari", "points": 90}},

		{"driver", store.Row{"driver_id": 101, "name": "Max Verstappen", "points": 150, "team_id": 1}},
		{"driver", store.Row{"driver_id": 102, "name": "Sergio Perez", "points": 80, "team_id": 1}},
		{"driver", store.Row{"driver_id": 103, "name": "Charles Leclerc", "points": 110, "team_id": 2}},
		{"driver", store.Row{"driver_id": 104, "name": "Carlos Sainz", "points": 70, "team_id": 2}},

		{"race", store.Row{"race_id": 501, "name": "Bahrain Grand Prix", "laps": 57, "race_date": "2026-03-08"}},
		{"race", store.Row{"race_id": 502, "name": "Jeddah Grand Prix", "laps": 50, "race_date": "2026-03-22"}},

		{"driver_race_map", store.Row{"driver_race_map_id": 9001, "race_id": 501, "driver_id": 101, "position": 1}},
		{"driver_race_map", store.Row{"driver_race_map_id": 9002, "race_id": 501, "driver_id": 103, "position": 2}},
		{"driver_race_map", store.Row{"driver_race_map_id": 9003, "race_id": 502, "driver_id": 103, "position": 1}},
	}

	for _, r := range rows {
		require.NoError(t, txn.Insert(r.table, r.row))
	}
	require.NoError(t, txn.Commit())
}

func (f *f1Fixture) plan(t *testing.T, name string) *views.MappingPlan {
	t.Helper()
	plan, ok := f.plans[name]
	require.True(t, ok, "no view %s in fixture", name)
	return plan
}

func (f *f1Fixture) doc(t *testing.T, view string, key store.Key) *Document {
	t.Helper()
	doc, err := f.mat.MaterializeByKey(f.plan(t, view), key)
	require.NoError(t, err)
	return doc
}
