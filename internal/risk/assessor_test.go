// internal/risk/assessor_test.go
package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapsafe/internal/plan"
)

type fakeGit struct {
	repo  bool
	dirty bool
}

func (g fakeGit) IsRepo() bool { return g.repo }
func (g fakeGit) Dirty() bool  { return g.dirty }

func editStep(n int, files ...string) plan.Step {
	return plan.Step{
		StepNumber:    n,
		Type:          plan.StepEditFile,
		ToolName:      "edit_file",
		RiskLevel:     plan.RiskLow,
		AffectedFiles: files,
	}
}

func bashStep(n int, command string) plan.Step {
	return plan.Step{
		StepNumber: n,
		Type:       plan.StepBashCommand,
		ToolName:   "bash",
		ToolArgs:   map[string]any{"command": command},
		RiskLevel:  plan.RiskMedium,
	}
}

func TestAssess_CriticalStepDominates(t *testing.T) {
	p := &plan.Plan{ID: "plan-dom"}
	for i := 1; i <= 10; i++ {
		p.AddStep(plan.Step{StepNumber: i, Type: plan.StepReadFile, RiskLevel: plan.RiskSafe})
	}
	p.AddStep(plan.Step{
		StepNumber:  11,
		Type:        plan.StepBashCommand,
		RiskLevel:   plan.RiskCritical,
		Description: "wipe partition",
		ToolArgs:    map[string]any{"command": "dd if=/dev/zero of=/dev/sda"},
	})

	a := NewAssessor()
	assessment := a.Assess(p)

	assert.Equal(t, plan.RiskCritical, assessment.RiskLevel)
	assert.GreaterOrEqual(t, assessment.Score, 40.0)
	assert.NotEmpty(t, assessment.RiskFactors)
}

func TestAssess_SafePlanScoresSafe(t *testing.T) {
	p := &plan.Plan{ID: "plan-safe"}
	p.AddStep(plan.Step{StepNumber: 1, Type: plan.StepReadFile, RiskLevel: plan.RiskSafe})
	p.AddStep(plan.Step{StepNumber: 2, Type: plan.StepSearch, RiskLevel: plan.RiskSafe})

	assessment := NewAssessor().Assess(p)

	assert.Equal(t, plan.RiskSafe, assessment.RiskLevel)
	assert.Zero(t, assessment.Score)
	assert.Empty(t, assessment.Conflicts)
}

func TestAssess_CriticalFileRaisesScore(t *testing.T) {
	base := &plan.Plan{ID: "plan-base", Steps: []plan.Step{editStep(1, "main.go")}}
	touchy := &plan.Plan{ID: "plan-env", Steps: []plan.Step{editStep(1, ".env")}}

	a := NewAssessor()
	baseScore := a.Assess(base).Score
	touchyAssessment := a.Assess(touchy)

	assert.Equal(t, baseScore+20, touchyAssessment.Score)
	require.NotEmpty(t, touchyAssessment.Warnings)
	assert.Contains(t, touchyAssessment.Warnings[0], ".env")
}

func TestAssess_FileCountThresholds(t *testing.T) {
	manyFiles := func(n int) *plan.Plan {
		p := &plan.Plan{ID: fmt.Sprintf("plan-%d", n)}
		for i := 1; i <= n; i++ {
			p.AddStep(editStep(i, fmt.Sprintf("pkg/file%02d.go", i)))
		}
		return p
	}

	a := NewAssessor()
	assert.Equal(t, 5.0, a.Assess(manyFiles(6)).Score-a.Assess(manyFiles(1)).Score)
	assert.Equal(t, 10.0, a.Assess(manyFiles(21)).Score-a.Assess(manyFiles(1)).Score)
}

func TestAssess_DestructiveOpsCapped(t *testing.T) {
	p := &plan.Plan{ID: "plan-destr"}
	for i := 1; i <= 5; i++ {
		p.AddStep(bashStep(i, fmt.Sprintf("rm -rf build%d", i)))
	}

	assessment := NewAssessor().Assess(p)

	// Step risk 15 (medium) + destructive capped at 20.
	assert.Equal(t, 35.0, assessment.Score)
	assert.False(t, assessment.BlastRadius.Reversible)
}

func TestAssess_GitRecommendationUsesRepoState(t *testing.T) {
	p := &plan.Plan{ID: "plan-git", Steps: []plan.Step{bashStep(1, "git commit -m x")}}

	clean := NewAssessor(WithGitStatus(fakeGit{repo: true, dirty: false})).Assess(p)
	dirty := NewAssessor(WithGitStatus(fakeGit{repo: true, dirty: true})).Assess(p)

	assert.Contains(t, clean.Recommendations, "Git operations detected - ensure working directory is clean")
	assert.Contains(t, dirty.Recommendations, "Git operations detected - working tree has uncommitted changes, commit or stash first")
}

func TestDetectConflicts(t *testing.T) {
	tests := []struct {
		name  string
		steps []plan.Step
		want  string
	}{
		{
			name: "double write",
			steps: []plan.Step{
				{StepNumber: 1, Type: plan.StepWriteFile, AffectedFiles: []string{"out.txt"}},
				{StepNumber: 2, Type: plan.StepWriteFile, AffectedFiles: []string{"out.txt"}},
			},
			want: "Conflict: out.txt is written multiple times (overwrites)",
		},
		{
			name: "delete plus modify",
			steps: []plan.Step{
				{StepNumber: 1, Type: plan.StepEditFile, AffectedFiles: []string{"gone.txt"}},
				{StepNumber: 2, Type: plan.StepDeleteFile, AffectedFiles: []string{"gone.txt"}},
			},
			want: "Conflict: gone.txt is deleted but also modified in other steps",
		},
		{
			name: "missing dependency",
			steps: []plan.Step{
				{StepNumber: 1, Dependencies: []int{9}},
			},
			want: "Conflict: Step 1 depends on non-existent step 9",
		},
		{
			name: "forward dependency",
			steps: []plan.Step{
				{StepNumber: 1, Dependencies: []int{2}},
				{StepNumber: 2},
			},
			want: "Conflict: Step 1 depends on later step 2 (circular dependency)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := DetectConflicts(&plan.Plan{ID: "plan-c", Steps: tt.steps})
			assert.Contains(t, conflicts, tt.want)
		})
	}
}

func TestDetectConflicts_CleanPlan(t *testing.T) {
	p := &plan.Plan{
		ID: "plan-clean",
		Steps: []plan.Step{
			{StepNumber: 1, Type: plan.StepWriteFile, AffectedFiles: []string{"a.txt"}},
			{StepNumber: 2, Type: plan.StepEditFile, AffectedFiles: []string{"b.txt"}, Dependencies: []int{1}},
		},
	}
	assert.Empty(t, DetectConflicts(p))
}
