package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertionScenario(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "assertions",
		Description: "final state checks",
		Schema:      `model: Task: fields: {title: {}, done: {default: false}}`,
		Steps: []Step{
			{Save: &SaveStep{Model: "Task", ID: "t1", Values: map[string]any{"title": "write"}}},
			{Save: &SaveStep{Model: "Task", ID: "t2", Values: map[string]any{"title": "test", "done": true}}},
		},
		Assertions: assertions,
	}
}

func TestAssertions_Pass(t *testing.T) {
	result, err := Run(assertionScenario(
		Assertion{Type: AssertCount, Model: "Task", Count: 2},
		Assertion{Type: AssertCount, Model: "Task", Where: map[string]any{"done": true}, Count: 1},
		Assertion{Type: AssertFinalState, Model: "Task", Where: map[string]any{"id": "t1"}, Expect: map[string]any{"title": "write", "done": false}},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertions_CountMismatch(t *testing.T) {
	result, err := Run(assertionScenario(
		Assertion{Type: AssertCount, Model: "Task", Where: map[string]any{"title__contains": "t"}, Count: 5},
	))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: count Task")
	assert.Contains(t, result.Errors[0], "Expected: 5 matching {title__contains=t}")
	assert.Contains(t, result.Errors[0], "Actual: 2")
}

func TestAssertions_FinalStateMismatch(t *testing.T) {
	result, err := Run(assertionScenario(
		Assertion{Type: AssertFinalState, Model: "Task", Where: map[string]any{"id": "t2"}, Expect: map[string]any{"done": false}},
		Assertion{Type: AssertFinalState, Model: "Task", Where: map[string]any{"id": "t9"}, Expect: map[string]any{"done": false}},
	))
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: done = false")
	assert.Contains(t, result.Errors[0], "Actual: done = true")
	assert.Contains(t, result.Errors[1], "Actual: none")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertCount, Model: "Task", Expected: "1", Actual: "0"}
	assert.Equal(t, "Assertion failed: count Task\n  Expected: 1\n  Actual: 0", err.Error())
}

func TestFormatWhere(t *testing.T) {
	assert.Equal(t, "{}", formatWhere(nil))
	assert.Equal(t, "{a=1, b=x}", formatWhere(map[string]any{"b": "x", "a": 1}))
}
