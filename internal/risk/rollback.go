// internal/risk/rollback.go
package risk

import (
	"fmt"
	"strings"

	"snapsafe/internal/checkpoint"
	"snapsafe/internal/plan"
)

// RollbackPlan describes how (and whether) a plan's effects can be undone.
type RollbackPlan struct {
	Steps              []string `json:"rollback_steps"`
	CheckpointRequired bool     `json:"checkpoint_required"`
	ManualIntervention bool     `json:"manual_intervention_needed"`
	TimeEstimate       string   `json:"estimated_rollback_time"`
	DataLossRisk       bool     `json:"data_loss_risk"`
}

// SimulateRollback walks the plan and produces the inverse action for each
// step: created files get deleted, edits restore from checkpoint, deletions
// and destructive commands are unrecoverable. latest may be nil when no
// checkpoint exists yet.
func SimulateRollback(p *plan.Plan, latest *checkpoint.Checkpoint) *RollbackPlan {
	rollback := &RollbackPlan{CheckpointRequired: true, TimeEstimate: "instant"}

	if latest != nil {
		rollback.CheckpointRequired = false
		rollback.Steps = append(rollback.Steps, fmt.Sprintf("Restore checkpoint: %s", latest.ID))
		rollback.TimeEstimate = "1-2 minutes"
	} else {
		rollback.Steps = append(rollback.Steps, "No checkpoint available - create one before proceeding")
	}

	for _, step := range p.Steps {
		target := "unknown"
		if len(step.AffectedFiles) > 0 {
			target = step.AffectedFiles[0]
		}

		switch step.Type {
		case plan.StepWriteFile:
			rollback.Steps = append(rollback.Steps, fmt.Sprintf("Delete created file: %s", target))

		case plan.StepEditFile:
			rollback.Steps = append(rollback.Steps, fmt.Sprintf("Restore original: %s", target))

		case plan.StepDeleteFile:
			rollback.Steps = append(rollback.Steps, fmt.Sprintf("Cannot restore deleted file: %s", target))
			rollback.DataLossRisk = true
			rollback.ManualIntervention = true

		case plan.StepBashCommand:
			command := commandText(step)
			switch {
			case strings.Contains(command, "git commit"):
				rollback.Steps = append(rollback.Steps, "Git reset to undo commit")
			case strings.Contains(command, "git push"):
				rollback.Steps = append(rollback.Steps, "Git force push to revert (dangerous)")
				rollback.ManualIntervention = true
			case isDestructiveCommand(command):
				rollback.Steps = append(rollback.Steps, fmt.Sprintf("Cannot undo: %s", truncate(command, 50)))
				rollback.DataLossRisk = true
				rollback.ManualIntervention = true
			}
		}
	}

	switch {
	case rollback.ManualIntervention:
		rollback.TimeEstimate = "30+ minutes (manual)"
	case len(rollback.Steps) > 10:
		rollback.TimeEstimate = "10-30 minutes"
	case len(rollback.Steps) > 3:
		rollback.TimeEstimate = "5-10 minutes"
	default:
		rollback.TimeEstimate = "1-5 minutes"
	}

	return rollback
}
