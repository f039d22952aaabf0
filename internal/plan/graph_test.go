// internal/plan/graph_test.go
package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(n int, deps ...int) Step {
	return Step{
		StepNumber:   n,
		Type:         StepEditFile,
		ToolName:     "edit_file",
		RiskLevel:    RiskLow,
		Dependencies: deps,
	}
}

func TestExecutionOrder_Batching(t *testing.T) {
	g := NewGraph([]Step{step(1), step(2, 1), step(3, 1)})

	batches := g.ExecutionOrder()
	require.Equal(t, [][]int{{1}, {2, 3}}, batches)
	assert.False(t, g.HasCycle())
}

func TestExecutionOrder_Diamond(t *testing.T) {
	g := NewGraph([]Step{step(1), step(2, 1), step(3, 1), step(4, 2, 3)})

	batches := g.ExecutionOrder()
	require.Equal(t, [][]int{{1}, {2, 3}, {4}}, batches)
}

func TestExecutionOrder_Independent(t *testing.T) {
	g := NewGraph([]Step{step(1), step(2), step(3)})

	batches := g.ExecutionOrder()
	require.Equal(t, [][]int{{1, 2, 3}}, batches)
}

func TestExecutionOrder_CycleDegradesToSingletons(t *testing.T) {
	steps := []Step{step(1), {StepNumber: 2, Dependencies: []int{3}}, {StepNumber: 3, Dependencies: []int{2}}}
	g := NewGraph(steps)

	assert.True(t, g.HasCycle())

	batches := g.ExecutionOrder()
	require.Equal(t, [][]int{{1}, {2}, {3}}, batches)
}

func TestExecutionOrder_Empty(t *testing.T) {
	g := NewGraph(nil)
	assert.Empty(t, g.ExecutionOrder())
	assert.False(t, g.HasCycle())
}

func TestCriticalPath_Chain(t *testing.T) {
	g := NewGraph([]Step{step(1), step(2, 1), step(3, 2), step(4)})

	assert.Equal(t, []int{1, 2, 3}, g.CriticalPath())
}

func TestCriticalPath_PicksLongestBranch(t *testing.T) {
	// 1 -> 2 -> 4 and 1 -> 3, both ending branches.
	g := NewGraph([]Step{step(1), step(2, 1), step(3, 1), step(4, 2)})

	assert.Equal(t, []int{1, 2, 4}, g.CriticalPath())
}

func TestCriticalPath_Empty(t *testing.T) {
	g := NewGraph(nil)
	assert.Empty(t, g.CriticalPath())
}
