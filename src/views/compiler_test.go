package views

import (
	"testing"

	"dualdb/src/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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

const teamViewDDL = `CREATE DUALITY VIEW "team_dv" AS team {
  _id: team_id,
  name,
  points,
  driver: driver @insert @update [ {
    driverId: driver_id,
    name,
    points
  } ]
}`

const driverViewDDL = `CREATE DUALITY VIEW "driver_dv" AS driver {
  _id: driver_id,
  name,
  points,
  team @unnest @update {
    teamId: team_id,
    teamName: name
  }
}`

func f1Schema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.LoadSchema([]byte(f1SchemaYAML))
	require.NoError(t, err)
	return s
}

func compileDDL(t *testing.T, sch *schema.Schema, ddl string) *MappingPlan {
	t.Helper()
	def, err := ParseCreateViewCommand(ddl, zap.NewNop().Sugar())
	require.NoError(t, err)
	plan, err := Compile(def, sch, zap.NewNop().Sugar())
	require.NoError(t, err)
	return plan
}

func compileErr(t *testing.T, sch *schema.Schema, ddl string) *SchemaError {
	t.Helper()
	def, err := ParseCreateViewCommand(ddl, zap.NewNop().Sugar())
	require.NoError(t, err)
	_, err = Compile(def, sch, zap.NewNop().Sugar())
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	return serr
}

func TestCompileTeamView(t *testing.T) {
	sch := f1Schema(t)
	plan := compileDDL(t, sch, teamViewDDL)

	require.Len(t, plan.Nodes, 2)

	root := plan.Root()
	assert.Equal(t, NoParent, root.Parent)
	assert.Equal(t, "team", root.Table.Name)
	assert.Equal(t, PermissionSet{Insert: true, Update: true, Delete: true}, root.Perms,
		"the root carries full permissions")

	require.Len(t, root.Fields, 3)
	assert.Equal(t, "_id", root.Fields[0].Name)
	assert.Equal(t, "team_id", root.Fields[0].Column)
	assert.True(t, root.Fields[0].Key)
	assert.True(t, root.Fields[0].Checked, "fields default to checked")

	child := plan.Node(root.Children[0])
	assert.Equal(t, Many, child.Card)
	assert.Equal(t, "driver", child.JSONKey)
	assert.Equal(t, PermissionSet{Insert: true, Update: true, Delete: false}, child.Perms,
		"unannotated operations default to forbidden on children")

	// the to-many join lives on the child table
	assert.Equal(t, "fk_driver_team", child.FKName)
	assert.Equal(t, []string{"team_id"}, child.FKColumns)

	ref, ok := plan.Paths["driver.driverId"]
	require.True(t, ok)
	assert.Equal(t, child.ID, ref.Node)
	assert.Equal(t, "driver_id", child.Fields[ref.Field].Column)
}

func TestCompileUnnestSharesNamespace(t *testing.T) {
	sch := f1Schema(t)
	plan := compileDDL(t, sch, driverViewDDL)

	child := plan.Node(1)
	assert.True(t, child.Unnest)
	assert.Empty(t, child.JSONKey)
	assert.Equal(t, One, child.Card)

	// unnested fields live at the document root
	ref, ok := plan.Paths["teamName"]
	require.True(t, ok)
	assert.Equal(t, child.ID, ref.Node)

	// to-one joins live on the parent table
	assert.Equal(t, "fk_driver_team", child.FKName)
	assert.Equal(t, []string{"team_id"}, child.FKColumns)
}

func TestCommandAndYAMLCompileIdentically(t *testing.T) {
	sch := f1Schema(t)

	defs, err := LoadViewsFile("testdata/f1_views.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	logger := zap.NewNop().Sugar()
	for i, ddl := range []string{teamViewDDL, driverViewDDL} {
		fromYAML, err := Compile(defs[i], sch, logger)
		require.NoError(t, err)

		fromDDL := compileDDL(t, sch, ddl)
		assert.Equal(t, fromDDL.Nodes, fromYAML.Nodes, "view %s", fromDDL.ViewName)
		assert.Equal(t, fromDDL.Paths, fromYAML.Paths, "view %s", fromDDL.ViewName)
	}
}

func TestCompileUnknownTable(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS nowhere { _id: x }`)
	assert.Contains(t, serr.Detail, "table 'nowhere' does not exist")
}

func TestCompileUnknownColumn(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS team { _id: team_id, budget }`)
	assert.Contains(t, serr.Detail, "no column 'budget'")
}

func TestCompileRequiresPrimaryKeyMapping(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS team { name, points }`)
	assert.Contains(t, serr.Detail, "must map primary key column 'team_id'")
}

func TestCompileConflictingAnnotations(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS team { _id: team_id, points @update @noupdate }`)
	assert.Contains(t, serr.Detail, "conflicting annotations")
}

func TestCompileDuplicateJSONNames(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS team { _id: team_id, name, name: points }`)
	assert.Contains(t, serr.Detail, "appears more than once")
}

func TestCompileUnnestNameCollision(t *testing.T) {
	// the unnested child's teamName collides with the parent's field
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS driver {
	  _id: driver_id,
	  teamName: name,
	  team @unnest {
	    teamId: team_id,
	    teamName: name
	  }
	}`)
	assert.Contains(t, serr.Detail, "appears more than once")
}

func TestCompileCyclicContainment(t *testing.T) {
	serr := compileErr(t, f1Schema(t), `CREATE DUALITY VIEW "v" AS team {
	  _id: team_id,
	  driver: driver [ {
	    driverId: driver_id,
	    team: team {
	      _id: team_id,
	      driver: driver [ { driverId: driver_id } ]
	    }
	  } ]
	}`)
	assert.Contains(t, serr.Detail, "cyclic containment")
}

func TestCompileAmbiguousJoinNeedsVia(t *testing.T) {
	s, err := schema.LoadSchema([]byte(`
tables:
  - name: team
    columns:
      - name: team_id
        type: int
        required: true
      - name: name
        type: string
        required: true
    primary_key: [team_id]
  - name: fixture
    columns:
      - name: fixture_id
        type: int
        required: true
      - name: home_team_id
        type: int
        required: true
      - name: away_team_id
        type: int
        required: true
    primary_key: [fixture_id]
    foreign_keys:
      - name: fk_fixture_home
        columns: [home_team_id]
        references: team
        ref_columns: [team_id]
      - name: fk_fixture_away
        columns: [away_team_id]
        references: team
        ref_columns: [team_id]
`))
	require.NoError(t, err)

	serr := compileErr(t, s, `CREATE DUALITY VIEW "v" AS fixture {
	  _id: fixture_id,
	  home: team { _id: team_id, name }
	}`)
	assert.Contains(t, serr.Detail, "more than one foreign key")

	plan := compileDDL(t, s, `CREATE DUALITY VIEW "v" AS fixture {
	  _id: fixture_id,
	  home: team @via ( fk_fixture_home ) { _id: team_id, name },
	  away: team @via ( fk_fixture_away ) { _id: team_id, name }
	}`)
	assert.Equal(t, "fk_fixture_home", plan.Node(1).FKName)
	assert.Equal(t, "fk_fixture_away", plan.Node(2).FKName)
}

func TestParserRejectsToManyUnnest(t *testing.T) {
	_, err := ParseCreateViewCommand(`CREATE DUALITY VIEW "v" AS team {
	  _id: team_id,
	  driver @unnest [ { driverId: driver_id } ]
	}`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be unnested")
}

func TestParserRejectsUnknownAnnotation(t *testing.T) {
	_, err := ParseCreateViewCommand(`CREATE DUALITY VIEW "v" AS team { _id: team_id, name @frobnicate }`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown annotation")
}

func TestParserRejectsKeyedUnnest(t *testing.T) {
	_, err := ParseCreateViewCommand(`CREATE DUALITY VIEW "v" AS driver {
	  _id: driver_id,
	  squad: team @unnest { teamId: team_id }
	}`, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not declare a JSON key")
}

func TestRootKey(t *testing.T) {
	plan := compileDDL(t, f1Schema(t), teamViewDDL)

	key, err := plan.RootKey(map[string]interface{}{"_id": 7, "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"team_id": 7}, key)

	_, err = plan.RootKey(map[string]interface{}{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key field '_id' is missing")
}

func TestPlanCache(t *testing.T) {
	sch := f1Schema(t)
	cache := NewPlanCache()

	first := compileDDL(t, sch, teamViewDDL)
	cache.Put(first)

	got, ok := cache.Get("team_dv")
	require.True(t, ok)
	assert.Same(t, first, got)

	// redefinition replaces the plan
	second := compileDDL(t, sch, teamViewDDL)
	cache.Put(second)
	got, _ = cache.Get("team_dv")
	assert.Same(t, second, got)
	assert.NotEqual(t, first.PlanID, second.PlanID)

	cache.Invalidate("team_dv")
	_, ok = cache.Get("team_dv")
	assert.False(t, ok)
	assert.Empty(t, cache.Names())
}
