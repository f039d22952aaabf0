// cmd/snapsafe/plan.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"snapsafe/internal/executor"
	"snapsafe/internal/plan"
	"snapsafe/internal/risk"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Assess and transactionally execute plan files",
}

var planAssessCmd = &cobra.Command{
	Use:   "assess <plan.json>",
	Short: "Score a plan's risk and simulate its rollback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		p, err := loadPlan(args[0])
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}

		assessment := a.assessor().Assess(p)

		fmt.Printf("Plan %s: %d steps\n", p.ID, len(p.Steps))
		fmt.Printf("Risk:  %s (score %.0f)\n", assessment.RiskLevel, assessment.Score)
		for _, factor := range assessment.RiskFactors {
			fmt.Printf("  factor:  %s\n", factor)
		}
		for _, warning := range assessment.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}
		for _, conflict := range assessment.Conflicts {
			fmt.Printf("  conflict: %s\n", conflict)
		}
		for _, rec := range assessment.Recommendations {
			fmt.Printf("  advice:  %s\n", rec)
		}

		rollback := risk.SimulateRollback(p, a.store.Latest())
		fmt.Println("\nRollback simulation:")
		for _, step := range rollback.Steps {
			fmt.Printf("  %s\n", step)
		}
		fmt.Printf("Estimated time: %s\n", rollback.TimeEstimate)
		if rollback.ManualIntervention {
			fmt.Println("Manual intervention would be needed")
		}
		if rollback.DataLossRisk {
			fmt.Println("Data loss risk: some effects cannot be undone")
		}
		return nil
	},
}

var planRunCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "Execute a plan transactionally with checkpoint rollback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		policyFlag, _ := cmd.Flags().GetString("policy")
		retry, _ := cmd.Flags().GetBool("retry")

		p, err := loadPlan(args[0])
		if err != nil {
			return err
		}

		policy := executor.Policy(a.cfg.Executor.Policy)
		if policyFlag != "" {
			policy = executor.Policy(policyFlag)
		}
		if policy != executor.PolicyWholeTransaction && policy != executor.PolicyPartial {
			return fmt.Errorf("unknown policy %q", policy)
		}

		hist, err := a.openHistory()
		if err != nil {
			return err
		}
		defer hist.Close()

		if a.cfg.Checkpoints.WatchIndex {
			watcher, err := a.store.WatchIndex(a.cfg.Checkpoints.IndexDebounce.Std())
			if err != nil {
				return err
			}
			defer watcher.Close()
		}
		a.store.StartRetention(cmd.Context(), a.cfg.Checkpoints.RetentionInterval.Std())

		approver := executor.Approver(executor.AutoApprove)
		if !yes {
			approver = executor.ApproverFunc(promptApproval)
		}

		exec := executor.New(a.store, newWorkspaceTools(a.cfg.Root), a.inspector,
			executor.WithAssessor(a.assessor()),
			executor.WithApprover(approver),
			executor.WithRecorder(hist),
			executor.WithPolicy(policy),
			executor.WithStepTimeout(a.cfg.Executor.StepTimeout.Std()),
			executor.WithMaxRetries(a.cfg.Executor.MaxRetries),
			executor.WithRetryDelay(a.cfg.Executor.RetryDelay.Std()),
			executor.WithExecutorLogger(a.logger),
		)

		var report *executor.Report
		if retry {
			report, err = exec.ExecuteWithRetry(cmd.Context(), p)
		} else {
			report, err = exec.Execute(cmd.Context(), p)
		}

		printReport(report)
		return err
	},
}

// assessor builds a risk assessor wired to the workspace git state when one
// is available.
func (a *app) assessor() *risk.Assessor {
	opts := []risk.AssessorOption{risk.WithAssessorLogger(a.logger)}
	if state, err := a.inspector.GitState(); err == nil {
		opts = append(opts, risk.WithGitStatus(state))
	}
	return risk.NewAssessor(opts...)
}

func loadPlan(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = plan.NewPlan(p.Request, p.Summary).ID
	}
	return &p, nil
}

// promptApproval shows the assessment and asks on stdin.
func promptApproval(_ context.Context, p *plan.Plan, assessment *risk.Assessment) (bool, error) {
	fmt.Printf("\nPlan %s: %d steps, risk %s (score %.0f)\n", p.ID, len(p.Steps), assessment.RiskLevel, assessment.Score)
	for _, step := range p.Steps {
		fmt.Printf("  %2d. [%s] %s\n", step.StepNumber, step.Type, step.Description)
	}
	for _, warning := range assessment.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	fmt.Print("Proceed? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printReport(report *executor.Report) {
	if report == nil {
		return
	}
	fmt.Printf("\nPlan %s: %s\n", report.PlanID, report.State)
	fmt.Printf("Steps: %d/%d succeeded", report.StepsSucceeded, report.StepsRequested)
	if len(report.FailedSteps) > 0 {
		fmt.Printf(", failed %v", report.FailedSteps)
	}
	if len(report.RolledBackSteps) > 0 {
		fmt.Printf(", rolled back %v", report.RolledBackSteps)
	}
	fmt.Println()
	if report.CheckpointID != "" {
		fmt.Printf("Checkpoint: %s\n", report.CheckpointID)
	}
	fmt.Printf("Duration: %s\n", report.Duration)
}

func init() {
	planRunCmd.Flags().BoolP("yes", "y", false, "Skip the approval prompt")
	planRunCmd.Flags().String("policy", "", "Rollback policy: whole_transaction or partial")
	planRunCmd.Flags().Bool("retry", false, "Retry the transaction on failure")

	planCmd.AddCommand(planAssessCmd, planRunCmd)
	rootCmd.AddCommand(planCmd)
}
