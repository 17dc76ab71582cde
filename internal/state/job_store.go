package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yieldpilot/vrm/internal/types"
)

var ErrInvalidTransition = errors.New("invalid job status transition")

// CreateJob persists a new job in pending state.
func (s *Store) CreateJob(job types.RebalanceJob) error {
	if job.Status != types.JobPending {
		return fmt.Errorf("%w: new jobs must be pending, got %s", ErrInvalidTransition, job.Status)
	}

	fromJSON, err := json.Marshal(job.FromVaults)
	if err != nil {
		return fmt.Errorf("failed to marshal withdraw legs: %w", err)
	}
	toJSON, err := json.Marshal(job.ToVaults)
	if err != nil {
		return fmt.Errorf("failed to marshal deposit legs: %w", err)
	}

	query := `
		INSERT INTO rebalance_jobs (
			id, user_wallet_address, status, job_type, scheduled_at,
			total_amount_usd, total_drift_percent, from_vaults, to_vaults,
			error_message, retry_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.Exec(query,
		job.ID, job.UserWalletAddress, job.Status, job.JobType, job.ScheduledAt,
		job.TotalAmountUSD, job.TotalDriftPercent, fromJSON, toJSON,
		job.ErrorMessage, job.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create rebalance job %s: %w", job.ID, err)
	}
	return nil
}

// MarkJobProcessing transitions pending -> processing. The WHERE clause
// enforces the state machine at the database level; transitioning from any
// other state is an error.
func (s *Store) MarkJobProcessing(jobID string) error {
	return s.transition(jobID, types.JobProcessing, types.JobPending, "", nil)
}

// CompleteJob transitions processing -> completed, recording execution time
// and the final legs with their transaction hashes.
func (s *Store) CompleteJob(jobID string, executedAt time.Time, fromVaults, toVaults []types.RebalanceLeg) error {
	if err := s.updateLegs(jobID, fromVaults, toVaults); err != nil {
		return err
	}
	return s.transition(jobID, types.JobCompleted, types.JobProcessing, "", &executedAt)
}

// FailJob transitions processing -> failed with the triggering error message
// and increments the retry counter. Legs that executed before the failure
// keep their transaction hashes.
func (s *Store) FailJob(jobID string, executedAt time.Time, errorMessage string, fromVaults, toVaults []types.RebalanceLeg) error {
	if err := s.updateLegs(jobID, fromVaults, toVaults); err != nil {
		return err
	}
	return s.transition(jobID, types.JobFailed, types.JobProcessing, errorMessage, &executedAt)
}

func (s *Store) transition(jobID string, to, from types.JobStatus, errorMessage string, executedAt *time.Time) error {
	query := `
		UPDATE rebalance_jobs SET
			status = $1,
			error_message = $2,
			executed_at = COALESCE($3, executed_at),
			retry_count = CASE WHEN $1 = 'failed' THEN retry_count + 1 ELSE retry_count END
		WHERE id = $4 AND status = $5
	`
	result, err := s.db.Exec(query, to, errorMessage, executedAt, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to transition job %s to %s: %w", jobID, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition of job %s: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s is not %s", ErrInvalidTransition, jobID, from)
	}
	return nil
}

func (s *Store) updateLegs(jobID string, fromVaults, toVaults []types.RebalanceLeg) error {
	fromJSON, err := json.Marshal(fromVaults)
	if err != nil {
		return fmt.Errorf("failed to marshal withdraw legs: %w", err)
	}
	toJSON, err := json.Marshal(toVaults)
	if err != nil {
		return fmt.Errorf("failed to marshal deposit legs: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE rebalance_jobs SET from_vaults = $1, to_vaults = $2 WHERE id = $3`, fromJSON, toJSON, jobID); err != nil {
		return fmt.Errorf("failed to update legs of job %s: %w", jobID, err)
	}
	return nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(jobID string) (types.RebalanceJob, error) {
	row := s.db.QueryRow(jobSelect+` WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RebalanceJob{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, err
}

// LatestJobForUser returns the user's most recently scheduled job. Used for
// the per-user cooldown check.
func (s *Store) LatestJobForUser(userWallet string) (types.RebalanceJob, error) {
	row := s.db.QueryRow(jobSelect+`
		WHERE user_wallet_address = $1
		ORDER BY scheduled_at DESC
		LIMIT 1
	`, userWallet)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RebalanceJob{}, fmt.Errorf("no jobs for user %s: %w", userWallet, ErrNotFound)
	}
	return job, err
}

// ListRecentJobs returns the newest jobs first.
func (s *Store) ListRecentJobs(limit int) ([]types.RebalanceJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(jobSelect+` ORDER BY scheduled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.RebalanceJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const jobSelect = `
	SELECT id, user_wallet_address, status, job_type, scheduled_at,
	       executed_at, total_amount_usd, total_drift_percent, from_vaults,
	       to_vaults, error_message, retry_count
	FROM rebalance_jobs
`

func scanJob(row rowScanner) (types.RebalanceJob, error) {
	var job types.RebalanceJob
	var executedAt sql.NullTime
	var fromJSON, toJSON []byte

	err := row.Scan(
		&job.ID, &job.UserWalletAddress, &job.Status, &job.JobType,
		&job.ScheduledAt, &executedAt, &job.TotalAmountUSD,
		&job.TotalDriftPercent, &fromJSON, &toJSON, &job.ErrorMessage,
		&job.RetryCount,
	)
	if err != nil {
		return types.RebalanceJob{}, err
	}
	if executedAt.Valid {
		t := executedAt.Time
		job.ExecutedAt = &t
	}
	if len(fromJSON) > 0 {
		if err := json.Unmarshal(fromJSON, &job.FromVaults); err != nil {
			return types.RebalanceJob{}, fmt.Errorf("failed to unmarshal withdraw legs: %w", err)
		}
	}
	if len(toJSON) > 0 {
		if err := json.Unmarshal(toJSON, &job.ToVaults); err != nil {
			return types.RebalanceJob{}, fmt.Errorf("failed to unmarshal deposit legs: %w", err)
		}
	}
	return job, nil
}

// SaveRunReport persists the summary of one orchestration run.
func (s *Store) SaveRunReport(report types.RunReport) error {
	query := `
		INSERT INTO run_reports (
			run_id, job_type, started_at, finished_at, users_scanned,
			users_skipped, jobs_created, jobs_completed, jobs_failed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(query,
		report.RunID, report.JobType, report.StartedAt, report.FinishedAt,
		report.UsersScanned, report.UsersSkipped, report.JobsCreated,
		report.JobsCompleted, report.JobsFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to save run report %s: %w", report.RunID, err)
	}
	return nil
}

// ListRunReports returns the newest run reports first.
func (s *Store) ListRunReports(limit int) ([]types.RunReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT run_id, job_type, started_at, finished_at, users_scanned,
		       users_skipped, jobs_created, jobs_completed, jobs_failed
		FROM run_reports
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run reports: %w", err)
	}
	defer rows.Close()

	var reports []types.RunReport
	for rows.Next() {
		var r types.RunReport
		if err := rows.Scan(
			&r.RunID, &r.JobType, &r.StartedAt, &r.FinishedAt,
			&r.UsersScanned, &r.UsersSkipped, &r.JobsCreated,
			&r.JobsCompleted, &r.JobsFailed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
