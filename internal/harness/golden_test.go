package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Library(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "library.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "library.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalTrace_IncludesErrors(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Step: StepAt, Date: "2024-01-02"})
	result.AddError("boom")

	out, err := MarshalTrace("failing", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"errors":["boom"],"scenario_name":"failing","trace":[{"date":"2024-01-02","seq":1,"step":"at"}]}`,
		string(out))
}
