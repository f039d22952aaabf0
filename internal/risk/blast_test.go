// internal/risk/blast_test.go
package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"snapsafe/internal/plan"
)

func TestCalculateBlastRadius_FilesAndDirs(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			editStep(1, "pkg/a.go", "pkg/b.go"),
			editStep(2, "cmd/main.go"),
		},
	}

	br := CalculateBlastRadius(p)

	assert.Equal(t, []string{"cmd/main.go", "pkg/a.go", "pkg/b.go"}, br.AffectedFiles)
	assert.Equal(t, []string{"cmd", "pkg"}, br.AffectedDirectories)
	assert.True(t, br.Reversible)
	assert.Equal(t, SeverityMinor, br.Severity)
}

func TestCalculateBlastRadius_DeleteForcesIrreversible(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			{StepNumber: 1, Type: plan.StepDeleteFile, AffectedFiles: []string{"old.txt"}},
		},
	}

	br := CalculateBlastRadius(p)

	assert.False(t, br.Reversible)
	assert.Equal(t, SeverityCritical, br.Severity)
	assert.Contains(t, br.DestructiveOperations[0], "Delete file: old.txt")
}

func TestCalculateBlastRadius_DestructiveCommand(t *testing.T) {
	p := &plan.Plan{Steps: []plan.Step{bashStep(1, "rm -rf ./build")}}

	br := CalculateBlastRadius(p)

	assert.False(t, br.Reversible)
	assert.Contains(t, br.DestructiveOperations[0], "Destructive bash: rm -rf ./build")
}

func TestCalculateBlastRadius_DetectsSystems(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			bashStep(1, "git push origin main"),
			bashStep(2, "docker compose up -d"),
			bashStep(3, "npm install"),
			bashStep(4, "psql -c 'select 1' postgres://localhost"),
		},
	}

	br := CalculateBlastRadius(p)

	for _, system := range []string{"git", "docker", "package_manager", "database"} {
		assert.True(t, br.Touches(system), "expected %s detected", system)
	}
}

func TestCalculateBlastRadius_SeverityBuckets(t *testing.T) {
	manyFiles := func(n int) *plan.Plan {
		p := &plan.Plan{}
		for i := 1; i <= n; i++ {
			p.AddStep(editStep(i, fmt.Sprintf("f%03d.go", i)))
		}
		return p
	}

	tests := []struct {
		files int
		want  Severity
	}{
		{0, SeverityNegligible},
		{3, SeverityMinor},
		{10, SeverityModerate},
		{30, SeverityMajor},
		{60, SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateBlastRadius(manyFiles(tt.files)).Severity, "%d files", tt.files)
	}
}
