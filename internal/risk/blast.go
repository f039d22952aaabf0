// internal/risk/blast.go
package risk

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"snapsafe/internal/plan"
)

// Severity buckets the impact of a plan by how much it touches.
type Severity string

const (
	SeverityNegligible Severity = "negligible"
	SeverityMinor      Severity = "minor"
	SeverityModerate   Severity = "moderate"
	SeverityMajor      Severity = "major"
	SeverityCritical   Severity = "critical"
)

// BlastRadius describes everything a plan may affect and whether the damage
// is undoable.
type BlastRadius struct {
	AffectedFiles         []string `json:"affected_files"`
	AffectedDirectories   []string `json:"affected_directories"`
	AffectedSystems       []string `json:"affected_systems"`
	DestructiveOperations []string `json:"destructive_operations"`
	Reversible            bool     `json:"reversible"`
	Severity              Severity `json:"impact_severity"`
	RecoveryEstimate      string   `json:"estimated_recovery_time"`
}

// Shell commands (or SQL fragments) that destroy data in ways a file
// checkpoint cannot undo.
var destructiveCommands = []string{
	"rm", "rmdir", "dd", "mkfs", "format",
	"fdisk", "parted", "shred", "truncate",
	"> /dev/", "DROP TABLE", "DROP DATABASE",
}

// systemMarkers maps external systems to the command substrings that reveal
// them. Database names are matched case-insensitively.
var systemMarkers = map[string][]string{
	"git":             {"git"},
	"docker":          {"docker"},
	"package_manager": {"npm", "yarn"},
}

var databaseMarkers = []string{"mysql", "postgres", "mongo", "redis"}

// CalculateBlastRadius derives the impact area of a plan from its steps.
func CalculateBlastRadius(p *plan.Plan) *BlastRadius {
	br := &BlastRadius{Reversible: true}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	systems := make(map[string]bool)

	for _, step := range p.Steps {
		for _, f := range step.AffectedFiles {
			files[f] = true
			dirs[filepath.Dir(f)] = true
		}

		switch step.Type {
		case plan.StepDeleteFile:
			br.DestructiveOperations = append(br.DestructiveOperations,
				fmt.Sprintf("Delete file: %s", strings.Join(step.AffectedFiles, ", ")))
			br.Reversible = false

		case plan.StepBashCommand:
			command := commandText(step)
			if isDestructiveCommand(command) {
				br.DestructiveOperations = append(br.DestructiveOperations,
					fmt.Sprintf("Destructive bash: %s", truncate(command, 50)))
				br.Reversible = false
			}
			for system, markers := range systemMarkers {
				for _, marker := range markers {
					if strings.Contains(command, marker) {
						systems[system] = true
					}
				}
			}
			lower := strings.ToLower(command)
			for _, db := range databaseMarkers {
				if strings.Contains(lower, db) {
					systems["database"] = true
				}
			}
		}
	}

	br.AffectedFiles = sortedKeys(files)
	br.AffectedDirectories = sortedKeys(dirs)
	br.AffectedSystems = sortedKeys(systems)

	fileCount := len(br.AffectedFiles)
	destructive := len(br.DestructiveOperations) > 0
	switch {
	case destructive || fileCount > 50:
		br.Severity = SeverityCritical
		br.RecoveryEstimate = "30+ minutes"
	case fileCount > 20:
		br.Severity = SeverityMajor
		br.RecoveryEstimate = "10-30 minutes"
	case fileCount > 5:
		br.Severity = SeverityModerate
		br.RecoveryEstimate = "5-10 minutes"
	case fileCount > 0:
		br.Severity = SeverityMinor
		br.RecoveryEstimate = "1-5 minutes"
	default:
		br.Severity = SeverityNegligible
		br.RecoveryEstimate = "instant"
	}

	return br
}

// Touches reports whether the blast radius includes the named system.
func (b *BlastRadius) Touches(system string) bool {
	for _, s := range b.AffectedSystems {
		if s == system {
			return true
		}
	}
	return false
}

func commandText(step plan.Step) string {
	if step.ToolArgs == nil {
		return ""
	}
	if cmd, ok := step.ToolArgs["command"].(string); ok {
		return cmd
	}
	return ""
}

func isDestructiveCommand(command string) bool {
	for _, marker := range destructiveCommands {
		if strings.Contains(command, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
