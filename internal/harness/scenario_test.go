package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Library(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "library.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "library", s.Name)
	assert.NotEmpty(t, s.Schema)
	require.Len(t, s.Steps, 10)
	assert.Equal(t, StepSave, s.Steps[0].Kind())
	assert.Equal(t, StepAt, s.Steps[3].Kind())
	assert.Equal(t, StepLink, s.Steps[5].Kind())
	assert.Equal(t, StepQuery, s.Steps[6].Kind())
	assert.Equal(t, []string{"lathe", "earthsea"}, s.Steps[6].Query.Expect.IDs)
	require.NotNil(t, s.Steps[9].Delete.Expect.Count)
	assert.Equal(t, 1, *s.Steps[9].Delete.Expect.Count)
	require.Len(t, s.Assertions, 2)
}

func TestLoadScenario_ResolvesSchemaFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "pagination.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "schemas", "tasks.cue"), filepath.Clean(s.SchemaFile))
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: d
schema: "model: A: {}"
step:
  - at: "2024-01-01"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\nschema: x\nsteps: [{at: \"2024-01-01\"}]", "name is required"},
		{"missing description", "name: n\nschema: x\nsteps: [{at: \"2024-01-01\"}]", "description is required"},
		{"missing schema", "name: n\ndescription: d\nsteps: [{at: \"2024-01-01\"}]", "schema or schema_file"},
		{"no steps", "name: n\ndescription: d\nschema: x", "steps list is required"},
		{"empty step", "name: n\ndescription: d\nschema: x\nsteps: [{}]", "exactly one of"},
		{
			"two kinds in a step",
			"name: n\ndescription: d\nschema: x\nsteps: [{at: \"2024-01-01\", delete: {model: A}}]",
			"exactly one of",
		},
		{"bad date", "name: n\ndescription: d\nschema: x\nsteps: [{at: \"01/02/2024\"}]", "steps[0].at"},
		{"save without model", "name: n\ndescription: d\nschema: x\nsteps: [{save: {id: a}}]", "model is required"},
		{"link without targets", "name: n\ndescription: d\nschema: x\nsteps: [{link: {model: A, id: a, field: f}}]", "targets is required"},
		{"link all", "name: n\ndescription: d\nschema: x\nsteps: [{link: {model: A, id: a, field: f, all: true}}]", "only valid for unlink"},
		{"update without set", "name: n\ndescription: d\nschema: x\nsteps: [{update: {model: A}}]", "set is required"},
		{"bad between", "name: n\ndescription: d\nschema: x\nsteps: [{query: {model: A, between: [\"2024-01-01\"]}}]", "between must be"},
		{"reverse without of", "name: n\ndescription: d\nschema: x\nsteps: [{query: {model: A, reverse: r}}]", "reverse and of"},
		{
			"unknown assertion",
			"name: n\ndescription: d\nschema: x\nsteps: [{at: \"2024-01-01\"}]\nassertions: [{type: trace_count, model: A}]",
			"unknown assertion type",
		},
		{
			"final_state without expect",
			"name: n\ndescription: d\nschema: x\nsteps: [{at: \"2024-01-01\"}]\nassertions: [{type: final_state, model: A}]",
			"expect is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_AbsoluteSchemaFileKept(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "m.cue")
	require.NoError(t, os.WriteFile(schema, []byte(`model: A: fields: x: {}`), 0o644))

	path := filepath.Join(dir, "s.yaml")
	body := "name: abs\ndescription: d\nschema_file: " + schema + "\nsteps: [{at: \"2024-01-01\"}]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, schema, s.SchemaFile)
}
