// internal/risk/rollback_test.go
package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"snapsafe/internal/checkpoint"
	"snapsafe/internal/plan"
)

func TestSimulateRollback_WithCheckpoint(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			{StepNumber: 1, Type: plan.StepWriteFile, AffectedFiles: []string{"new.txt"}},
			{StepNumber: 2, Type: plan.StepEditFile, AffectedFiles: []string{"existing.txt"}},
		},
	}
	latest := &checkpoint.Checkpoint{ID: "cp_20260830_120000_000001", CreatedAt: time.Now()}

	rollback := SimulateRollback(p, latest)

	assert.False(t, rollback.CheckpointRequired)
	assert.Contains(t, rollback.Steps, "Restore checkpoint: cp_20260830_120000_000001")
	assert.Contains(t, rollback.Steps, "Delete created file: new.txt")
	assert.Contains(t, rollback.Steps, "Restore original: existing.txt")
	assert.False(t, rollback.DataLossRisk)
	assert.False(t, rollback.ManualIntervention)
}

func TestSimulateRollback_NoCheckpoint(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{{StepNumber: 1, Type: plan.StepEditFile, AffectedFiles: []string{"a.txt"}}}}

	rollback := SimulateRollback(p, nil)

	assert.True(t, rollback.CheckpointRequired)
	assert.Contains(t, rollback.Steps, "No checkpoint available - create one before proceeding")
}

func TestSimulateRollback_DeleteIsUnrecoverable(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			{StepNumber: 1, Type: plan.StepDeleteFile, AffectedFiles: []string{"precious.db"}},
		},
	}

	rollback := SimulateRollback(p, nil)

	assert.True(t, rollback.DataLossRisk)
	assert.True(t, rollback.ManualIntervention)
	assert.Contains(t, rollback.Steps, "Cannot restore deleted file: precious.db")
	assert.Equal(t, "30+ minutes (manual)", rollback.TimeEstimate)
}

func TestSimulateRollback_GitCommands(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			bashStep(1, "git commit -m 'change'"),
			bashStep(2, "git push origin main"),
		},
	}

	rollback := SimulateRollback(p, nil)

	assert.Contains(t, rollback.Steps, "Git reset to undo commit")
	assert.Contains(t, rollback.Steps, "Git force push to revert (dangerous)")
	assert.True(t, rollback.ManualIntervention)
}

func TestSimulateRollback_DestructiveCommand(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{bashStep(1, "dd if=/dev/zero of=disk.img")}}

	rollback := SimulateRollback(p, nil)

	assert.True(t, rollback.DataLossRisk)
	assert.True(t, rollback.ManualIntervention)
}
