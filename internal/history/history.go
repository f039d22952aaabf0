// internal/history/history.go
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome classifies how a plan execution ended.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeRollback       Outcome = "rollback"
)

// Record is one executed plan, kept for analytics and auditing.
type Record struct {
	PlanID         string
	Request        string
	Summary        string
	StepCount      int
	Outcome        Outcome
	ExecutedAt     time.Time
	Duration       time.Duration
	StepsCompleted int
	Errors         []string
	RiskLevel      string
	StepTypes      []string
}

// Analytics summarizes the execution history. Rates are percentages, 0-100.
type Analytics struct {
	TotalPlans        int                `json:"total_plans"`
	SuccessfulPlans   int                `json:"successful_plans"`
	FailedPlans       int                `json:"failed_plans"`
	SuccessRate       float64            `json:"success_rate"`
	AvgDuration       time.Duration      `json:"avg_duration"`
	OperationCounts   map[string]int     `json:"operation_counts"`
	SuccessRateByRisk map[string]float64 `json:"success_rate_by_risk"`
	Recommendations   []string           `json:"recommendations,omitempty"`
}

// Store persists execution records in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plan_executions (
		plan_id TEXT PRIMARY KEY,
		user_request TEXT NOT NULL,
		plan_summary TEXT,
		step_count INTEGER,
		outcome TEXT,
		executed_at DATETIME,
		duration_seconds REAL,
		steps_completed INTEGER,
		errors TEXT,
		risk_level TEXT,
		step_types TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_plan_executions_outcome ON plan_executions(outcome);
	CREATE INDEX IF NOT EXISTS idx_plan_executions_executed_at ON plan_executions(executed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordExecution inserts or replaces one execution record.
func (s *Store) RecordExecution(rec Record) error {
	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	typesJSON, err := json.Marshal(rec.StepTypes)
	if err != nil {
		return fmt.Errorf("marshal step types: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO plan_executions
		(plan_id, user_request, plan_summary, step_count, outcome, executed_at,
		 duration_seconds, steps_completed, errors, risk_level, step_types)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PlanID, rec.Request, rec.Summary, rec.StepCount, string(rec.Outcome),
		rec.ExecutedAt.UTC(), rec.Duration.Seconds(), rec.StepsCompleted,
		string(errorsJSON), rec.RiskLevel, string(typesJSON))
	return err
}

// GetExecution returns the record for one plan id.
func (s *Store) GetExecution(planID string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT plan_id, user_request, plan_summary, step_count, outcome, executed_at,
		       duration_seconds, steps_completed, errors, risk_level, step_types
		FROM plan_executions WHERE plan_id = ?`, planID)
	return scanRecord(row)
}

// RecentExecutions returns up to limit records, most recent first.
func (s *Store) RecentExecutions(limit int) ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT plan_id, user_request, plan_summary, step_count, outcome, executed_at,
		       duration_seconds, steps_completed, errors, risk_level, step_types
		FROM plan_executions ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var outcome, errorsJSON, typesJSON string
	var seconds float64
	err := row.Scan(&rec.PlanID, &rec.Request, &rec.Summary, &rec.StepCount, &outcome,
		&rec.ExecutedAt, &seconds, &rec.StepsCompleted, &errorsJSON, &rec.RiskLevel, &typesJSON)
	if err != nil {
		return nil, err
	}
	rec.Outcome = Outcome(outcome)
	rec.Duration = time.Duration(seconds * float64(time.Second))
	if errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &rec.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	if typesJSON != "" {
		if err := json.Unmarshal([]byte(typesJSON), &rec.StepTypes); err != nil {
			return nil, fmt.Errorf("unmarshal step types: %w", err)
		}
	}
	return &rec, nil
}

// GenerateAnalytics aggregates the history, optionally limited to the last
// N days. since <= 0 means all time.
func (s *Store) GenerateAnalytics(since time.Duration) (*Analytics, error) {
	query := `
		SELECT plan_id, user_request, plan_summary, step_count, outcome, executed_at,
		       duration_seconds, steps_completed, errors, risk_level, step_types
		FROM plan_executions`
	var args []any
	if since > 0 {
		query += " WHERE executed_at >= ?"
		args = append(args, time.Now().UTC().Add(-since))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	a := &Analytics{
		TotalPlans:        len(records),
		OperationCounts:   make(map[string]int),
		SuccessRateByRisk: make(map[string]float64),
	}
	if a.TotalPlans == 0 {
		return a, nil
	}

	var totalDuration time.Duration
	byRisk := make(map[string]*struct{ total, success int })
	for _, rec := range records {
		switch rec.Outcome {
		case OutcomeSuccess:
			a.SuccessfulPlans++
		case OutcomeFailure:
			a.FailedPlans++
		}
		totalDuration += rec.Duration
		for _, st := range rec.StepTypes {
			a.OperationCounts[st]++
		}

		risk := rec.RiskLevel
		if risk == "" {
			risk = "unknown"
		}
		stats, ok := byRisk[risk]
		if !ok {
			stats = &struct{ total, success int }{}
			byRisk[risk] = stats
		}
		stats.total++
		if rec.Outcome == OutcomeSuccess {
			stats.success++
		}
	}

	a.SuccessRate = float64(a.SuccessfulPlans) / float64(a.TotalPlans) * 100
	a.AvgDuration = totalDuration / time.Duration(a.TotalPlans)
	for risk, stats := range byRisk {
		a.SuccessRateByRisk[risk] = float64(stats.success) / float64(stats.total) * 100
	}

	a.Recommendations = recommend(a)
	return a, nil
}

// recommend derives advice from aggregate history.
func recommend(a *Analytics) []string {
	var recs []string

	if a.TotalPlans >= 5 && a.SuccessRate < 50 {
		recs = append(recs, "Less than half of recent plans succeed - review plans more carefully before approval")
	}

	for _, risk := range sortedRisks(a.SuccessRateByRisk) {
		rate := a.SuccessRateByRisk[risk]
		if (risk == "high" || risk == "critical") && rate < 50 {
			recs = append(recs, fmt.Sprintf("%s-risk plans fail often (%.0f%% success) - prefer smaller, safer steps", risk, rate))
		}
	}

	return recs
}

func sortedRisks(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
