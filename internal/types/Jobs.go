/*

This file contains the rebalance job types. A job is one rebalancing attempt
for one user; once it reaches a terminal state it is never mutated again. A
retry is a fresh job with an incremented retry count.

*/

package types

import "time"

// JobStatus is the lifecycle state of a RebalanceJob.
// Permitted transitions: pending -> processing -> completed | failed.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobType distinguishes scheduler-created jobs from operator-triggered ones.
type JobType string

const (
	JobTypeDaily  JobType = "daily"
	JobTypeManual JobType = "manual"
)

// LegType is the direction of one rebalance leg.
type LegType string

const (
	LegWithdraw LegType = "withdraw"
	LegDeposit  LegType = "deposit"
)

// RebalanceLeg is one withdraw or deposit operation within a job. Within a
// job, all withdraw legs execute before any deposit leg.
type RebalanceLeg struct {
	Type         LegType `json:"type"`
	VaultAddress string  `json:"vault_address"`
	ChainID      int64   `json:"chain_id"`
	AmountUSD    float64 `json:"amount_usd"`
	TxHash       string  `json:"tx_hash,omitempty"`
}

// RebalanceJob records one rebalancing attempt for one user.
type RebalanceJob struct {
	ID                string    `json:"id"`
	UserWalletAddress string    `json:"user_wallet_address"`
	Status            JobStatus `json:"status"`
	JobType           JobType   `json:"job_type"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`

	TotalAmountUSD    float64 `json:"total_amount_usd"`
	TotalDriftPercent float64 `json:"total_drift_percent"`

	FromVaults []RebalanceLeg `json:"from_vaults"` // withdraw legs
	ToVaults   []RebalanceLeg `json:"to_vaults"`   // deposit legs

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`
}

// RunReport summarizes one orchestration run over the user population.
type RunReport struct {
	RunID         string    `json:"run_id"`
	JobType       JobType   `json:"job_type"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	UsersScanned  int       `json:"users_scanned"`
	UsersSkipped  int       `json:"users_skipped"`
	JobsCreated   int       `json:"jobs_created"`
	JobsCompleted int       `json:"jobs_completed"`
	JobsFailed    int       `json:"jobs_failed"`
}
