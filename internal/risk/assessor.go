// internal/risk/assessor.go
package risk

import (
	"fmt"
	"log/slog"
	"regexp"

	"snapsafe/internal/plan"
)

// Assessment is the full risk picture for one plan.
type Assessment struct {
	Score           float64        `json:"overall_risk_score"`
	RiskLevel       plan.RiskLevel `json:"risk_level"`
	RiskFactors     []string       `json:"risk_factors,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Conflicts       []string       `json:"conflicts,omitempty"`
	BlastRadius     *BlastRadius   `json:"blast_radius"`
}

// GitStatus exposes the workspace repository state an assessor consults when
// a plan touches git.
type GitStatus interface {
	IsRepo() bool
	Dirty() bool
}

// Paths whose modification raises the stakes regardless of the operation:
// secrets, manifests, databases, and version control internals.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.env`),
	regexp.MustCompile(`(?i)config\.ya?ml`),
	regexp.MustCompile(`(?i)secrets`),
	regexp.MustCompile(`(?i)credentials`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)database`),
	regexp.MustCompile(`(?i)\.git/`),
	regexp.MustCompile(`(?i)package\.json`),
	regexp.MustCompile(`(?i)requirements\.txt`),
	regexp.MustCompile(`(?i)Cargo\.toml`),
	regexp.MustCompile(`(?i)go\.mod`),
}

// Step risk contributions. The assessor takes the maximum across steps, not
// the sum, so one critical step dominates any number of safe ones.
var stepRiskWeights = map[plan.RiskLevel]float64{
	plan.RiskSafe:     0,
	plan.RiskLow:      5,
	plan.RiskMedium:   15,
	plan.RiskHigh:     30,
	plan.RiskCritical: 40,
}

// Assessor scores plans. Construct one per workspace; the optional git
// status sharpens recommendations when a plan touches version control.
type Assessor struct {
	logger *slog.Logger
	git    GitStatus
}

// AssessorOption configures an Assessor.
type AssessorOption func(*Assessor)

// WithGitStatus lets the assessor inspect the live repository state.
func WithGitStatus(git GitStatus) AssessorOption {
	return func(a *Assessor) { a.git = git }
}

// WithAssessorLogger sets the assessor logger.
func WithAssessorLogger(logger *slog.Logger) AssessorOption {
	return func(a *Assessor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssessor builds a plan risk assessor.
func NewAssessor(opts ...AssessorOption) *Assessor {
	a := &Assessor{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess produces the composite risk assessment for a plan. The score is a
// bounded sum of capped factors: worst step risk (max 40), file impact
// (max 30), destructive operations (max 20), and conflicts (max 10).
func (a *Assessor) Assess(p *plan.Plan) *Assessment {
	assessment := &Assessment{
		BlastRadius: CalculateBlastRadius(p),
	}

	score := a.scoreStepRisks(p, assessment)
	score += a.scoreFileImpact(assessment)
	score += a.scoreDestructiveOps(assessment)
	score += a.scoreConflicts(p, assessment)

	if score > 100 {
		score = 100
	}
	assessment.Score = score

	// The composite score alone can understate a plan whose single worst
	// step is critical, so the reported level never drops below the worst
	// step's own level.
	assessment.RiskLevel = scoreToRiskLevel(score)
	if worst := p.OverallRisk(); worst > assessment.RiskLevel {
		assessment.RiskLevel = worst
	}

	a.recommend(assessment)

	a.logger.Debug("assessed plan",
		slog.String("plan", p.ID),
		slog.Float64("score", assessment.Score),
		slog.String("level", assessment.RiskLevel.String()),
	)

	return assessment
}

func (a *Assessor) scoreStepRisks(p *plan.Plan, assessment *Assessment) float64 {
	var score float64
	for _, step := range p.Steps {
		if w := stepRiskWeights[step.RiskLevel]; w > score {
			score = w
		}
		if step.RiskLevel >= plan.RiskHigh {
			assessment.RiskFactors = append(assessment.RiskFactors,
				fmt.Sprintf("Step %d: %s risk - %s", step.StepNumber, step.RiskLevel, step.Description))
		}
	}
	return score
}

func (a *Assessor) scoreFileImpact(assessment *Assessment) float64 {
	criticalCount := 0
	for _, f := range assessment.BlastRadius.AffectedFiles {
		for _, pattern := range criticalPatterns {
			if pattern.MatchString(f) {
				criticalCount++
				assessment.Warnings = append(assessment.Warnings, fmt.Sprintf("Critical file affected: %s", f))
				break
			}
		}
	}

	var score float64
	if criticalCount > 0 {
		score += 20
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("%d critical file(s) affected", criticalCount))
	}

	fileCount := len(assessment.BlastRadius.AffectedFiles)
	switch {
	case fileCount > 20:
		score += 10
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("Large file impact: %d files", fileCount))
	case fileCount > 5:
		score += 5
	}

	if score > 30 {
		score = 30
	}
	return score
}

func (a *Assessor) scoreDestructiveOps(assessment *Assessment) float64 {
	count := len(assessment.BlastRadius.DestructiveOperations)
	if count == 0 {
		return 0
	}

	assessment.RiskFactors = append(assessment.RiskFactors,
		fmt.Sprintf("%d destructive operation(s)", count))
	for _, op := range assessment.BlastRadius.DestructiveOperations {
		assessment.Warnings = append(assessment.Warnings, fmt.Sprintf("Destructive: %s", op))
	}

	score := float64(count) * 10
	if score > 20 {
		score = 20
	}
	return score
}

func (a *Assessor) scoreConflicts(p *plan.Plan, assessment *Assessment) float64 {
	conflicts := DetectConflicts(p)
	assessment.Conflicts = conflicts
	if len(conflicts) == 0 {
		return 0
	}

	assessment.Warnings = append(assessment.Warnings, conflicts...)
	assessment.RiskFactors = append(assessment.RiskFactors,
		fmt.Sprintf("%d conflict(s) detected", len(conflicts)))

	score := float64(len(conflicts)) * 5
	if score > 10 {
		score = 10
	}
	return score
}

func scoreToRiskLevel(score float64) plan.RiskLevel {
	switch {
	case score >= 70:
		return plan.RiskCritical
	case score >= 50:
		return plan.RiskHigh
	case score >= 30:
		return plan.RiskMedium
	case score >= 10:
		return plan.RiskLow
	default:
		return plan.RiskSafe
	}
}

func (a *Assessor) recommend(assessment *Assessment) {
	if assessment.Score >= 50 {
		assessment.Recommendations = append(assessment.Recommendations,
			"Create checkpoint before executing this plan",
			"Review all steps carefully before proceeding")
	}

	if !assessment.BlastRadius.Reversible {
		assessment.Recommendations = append(assessment.Recommendations,
			"Plan contains irreversible operations - ensure you have backups")
	}

	if len(assessment.Conflicts) > 0 {
		assessment.Recommendations = append(assessment.Recommendations,
			"Resolve conflicts before execution")
	}

	if len(assessment.BlastRadius.AffectedFiles) > 20 {
		assessment.Recommendations = append(assessment.Recommendations,
			"Consider breaking plan into smaller, incremental steps")
	}

	if assessment.BlastRadius.Touches("database") {
		assessment.Recommendations = append(assessment.Recommendations,
			"Database operations detected - verify database backups exist")
	}

	if assessment.BlastRadius.Touches("git") {
		switch {
		case a.git != nil && a.git.IsRepo() && a.git.Dirty():
			assessment.Recommendations = append(assessment.Recommendations,
				"Git operations detected - working tree has uncommitted changes, commit or stash first")
		default:
			assessment.Recommendations = append(assessment.Recommendations,
				"Git operations detected - ensure working directory is clean")
		}
	}
}

// DetectConflicts finds steps that fight each other: the same file written
// more than once, a file both deleted and otherwise modified, or a
// dependency on a missing or later step.
func DetectConflicts(p *plan.Plan) []string {
	var conflicts []string

	type op struct {
		stepNumber int
		stepType   plan.StepType
	}
	fileOps := make(map[string][]op)
	var fileOrder []string
	for _, step := range p.Steps {
		for _, f := range step.AffectedFiles {
			if _, seen := fileOps[f]; !seen {
				fileOrder = append(fileOrder, f)
			}
			fileOps[f] = append(fileOps[f], op{step.StepNumber, step.Type})
		}
	}

	for _, f := range fileOrder {
		ops := fileOps[f]
		if len(ops) < 2 {
			continue
		}
		deletes, writes := 0, 0
		for _, o := range ops {
			switch o.stepType {
			case plan.StepDeleteFile:
				deletes++
			case plan.StepWriteFile:
				writes++
			}
		}
		if deletes > 0 {
			conflicts = append(conflicts,
				fmt.Sprintf("Conflict: %s is deleted but also modified in other steps", f))
		} else if writes > 1 {
			conflicts = append(conflicts,
				fmt.Sprintf("Conflict: %s is written multiple times (overwrites)", f))
		}
	}

	known := make(map[int]bool, len(p.Steps))
	for _, step := range p.Steps {
		known[step.StepNumber] = true
	}
	for _, step := range p.Steps {
		for _, dep := range step.Dependencies {
			if !known[dep] {
				conflicts = append(conflicts,
					fmt.Sprintf("Conflict: Step %d depends on non-existent step %d", step.StepNumber, dep))
			}
			if dep >= step.StepNumber {
				conflicts = append(conflicts,
					fmt.Sprintf("Conflict: Step %d depends on later step %d (circular dependency)", step.StepNumber, dep))
			}
		}
	}

	return conflicts
}
