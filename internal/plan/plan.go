// internal/plan/plan.go
package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RiskLevel orders operations from read-only to system-level. The numeric
// order matters: plan risk is the maximum across steps.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskSafe:     "safe",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// ParseRiskLevel maps a name back to its level. Unknown names default to
// critical so a malformed plan is never treated as safe.
func ParseRiskLevel(name string) RiskLevel {
	for level, n := range riskNames {
		if n == strings.ToLower(name) {
			return level
		}
	}
	return RiskCritical
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*r = ParseRiskLevel(name)
	return nil
}

// StepType classifies what a step does. The tool name carries the actual
// dispatch; the type drives risk and rollback analysis.
type StepType string

const (
	StepReadFile    StepType = "read_file"
	StepWriteFile   StepType = "write_file"
	StepEditFile    StepType = "edit_file"
	StepDeleteFile  StepType = "delete_file"
	StepCreateDir   StepType = "create_directory"
	StepBashCommand StepType = "bash"
	StepGitOp       StepType = "git"
	StepSearch      StepType = "search"
	StepOther       StepType = "other"
)

// Step is a single unit of work in an execution plan. Dependencies reference
// earlier steps by number; a valid plan only depends backward.
type Step struct {
	StepNumber    int            `json:"step_number"`
	Type          StepType       `json:"step_type"`
	Description   string         `json:"description"`
	ToolName      string         `json:"tool_name"`
	ToolArgs      map[string]any `json:"tool_args,omitempty"`
	RiskLevel     RiskLevel      `json:"risk_level"`
	AffectedFiles []string       `json:"affected_files,omitempty"`
	Dependencies  []int          `json:"dependencies,omitempty"`
}

// Plan is an ordered list of steps derived from one user request.
type Plan struct {
	ID        string    `json:"plan_id"`
	Request   string    `json:"user_request"`
	Summary   string    `json:"summary"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPlan starts an empty plan for a user request.
func NewPlan(request, summary string) *Plan {
	return &Plan{
		ID:        uuid.New().String(),
		Request:   request,
		Summary:   summary,
		CreatedAt: time.Now(),
	}
}

// AddStep appends a step to the plan.
func (p *Plan) AddStep(step Step) {
	p.Steps = append(p.Steps, step)
}

// OverallRisk is the maximum risk level across all steps.
func (p *Plan) OverallRisk() RiskLevel {
	overall := RiskSafe
	for _, step := range p.Steps {
		if step.RiskLevel > overall {
			overall = step.RiskLevel
		}
	}
	return overall
}

// AffectedFiles is the sorted union of every step's affected files.
func (p *Plan) AffectedFiles() []string {
	seen := make(map[string]bool)
	var files []string
	for _, step := range p.Steps {
		for _, f := range step.AffectedFiles {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	sort.Strings(files)
	return files
}

// HighRiskSteps returns the steps at high or critical risk.
func (p *Plan) HighRiskSteps() []Step {
	var out []Step
	for _, step := range p.Steps {
		if step.RiskLevel >= RiskHigh {
			out = append(out, step)
		}
	}
	return out
}

// Step returns the step with the given number, or nil.
func (p *Plan) Step(n int) *Step {
	for i := range p.Steps {
		if p.Steps[i].StepNumber == n {
			return &p.Steps[i]
		}
	}
	return nil
}

// ValidationError collects everything structurally wrong with a plan. A plan
// that fails validation must not reach execution.
type ValidationError struct {
	PlanID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan %s invalid: %s", e.PlanID, strings.Join(e.Problems, "; "))
}

// Validate checks the structural invariants: step numbers are unique, and
// every dependency references an existing, strictly earlier step.
func (p *Plan) Validate() error {
	var problems []string

	seen := make(map[int]bool, len(p.Steps))
	for _, step := range p.Steps {
		if seen[step.StepNumber] {
			problems = append(problems, fmt.Sprintf("duplicate step number %d", step.StepNumber))
		}
		seen[step.StepNumber] = true
	}

	for _, step := range p.Steps {
		for _, dep := range step.Dependencies {
			switch {
			case !seen[dep]:
				problems = append(problems, fmt.Sprintf("step %d depends on missing step %d", step.StepNumber, dep))
			case dep == step.StepNumber:
				problems = append(problems, fmt.Sprintf("step %d depends on itself", step.StepNumber))
			case dep > step.StepNumber:
				problems = append(problems, fmt.Sprintf("step %d depends on later step %d", step.StepNumber, dep))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{PlanID: p.ID, Problems: problems}
	}
	return nil
}
