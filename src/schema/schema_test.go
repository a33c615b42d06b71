package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
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
    primary_key: [team_id]

  - name: driver
    columns:
      - name: driver_id
        type: int
        required: true
      - name: name
        type: string
        required: true
      - name: team_id
        type: int
    primary_key: [driver_id]
    foreign_keys:
      - name: fk_driver_team
        columns: [team_id]
        references: team
        ref_columns: [team_id]
`

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"team", "driver"}, s.Order)

	team, ok := s.Table("team")
	require.True(t, ok)
	assert.Equal(t, []string{"team_id"}, team.PrimaryKey)

	// a single-column unique flag becomes a named constraint
	require.Len(t, team.Uniques, 1)
	assert.Equal(t, "uq_team_name", team.Uniques[0].Name)

	driver, _ := s.Table("driver")
	fk, ok := driver.ForeignKey("fk_driver_team")
	require.True(t, ok)
	assert.Equal(t, "team", fk.RefTable)
	assert.False(t, fk.RequiredOn(driver), "team_id is nullable")
}

func TestLoadSchemaFile(t *testing.T) {
	s, err := LoadSchemaFile("testdata/f1_schema.yaml")
	require.NoError(t, err)
	assert.Len(t, s.Order, 4)

	drm, ok := s.Table("driver_race_map")
	require.True(t, ok)
	assert.Len(t, drm.ForeignKeys, 2)
	require.Len(t, drm.Uniques, 1)
	assert.Equal(t, []string{"race_id", "driver_id"}, drm.Uniques[0].Columns)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	s := NewSchema()
	require.NoError(t, s.AddTable(&Table{
		Name: "bad",
		Columns: []Column{
			{Name: "id", Type: "uuid", Required: false},
		},
		PrimaryKey: []string{"id", "missing"},
		ForeignKeys: []ForeignKey{
			{Name: "fk_nowhere", Columns: []string{"id"}, RefTable: "nowhere", RefColumns: []string{"x"}},
		},
	}))

	err := s.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown type 'uuid'")
	assert.Contains(t, msg, "must be required")
	assert.Contains(t, msg, "unknown column 'missing'")
	assert.Contains(t, msg, "unknown table 'nowhere'")
}

func TestForeignKeyMustTargetPrimaryKey(t *testing.T) {
	bad := `
tables:
  - name: team
    columns:
      - name: team_id
        type: int
        required: true
      - name: code
        type: string
        required: true
    primary_key: [team_id]
  - name: driver
    columns:
      - name: driver_id
        type: int
        required: true
      - name: team_code
        type: string
    primary_key: [driver_id]
    foreign_keys:
      - name: fk_driver_team
        columns: [team_code]
        references: team
        ref_columns: [code]
`
	_, err := LoadSchema([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must reference the primary key")
}

func TestDuplicateTableRejected(t *testing.T) {
	s := NewSchema()
	require.NoError(t, s.AddTable(&Table{Name: "team"}))
	assert.Error(t, s.AddTable(&Table{Name: "team"}))
}
