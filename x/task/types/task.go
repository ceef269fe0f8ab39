// Package types defines the task entity, its lifecycle states, parameters,
// sentinel errors and event vocabulary.
package types

import (
	"encoding/binary"
	"time"

	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/storage"
	staketypes "github.com/haunti-network/haunti/x/stake/types"
)

// ModuleName is the task module codespace.
const ModuleName = "task"

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateClaimed   TaskState = "claimed"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
	StateExpired   TaskState = "expired"
)

// Terminal reports whether no further transition can leave s.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	}
	return false
}

var taskSeed = []byte("task")

// TaskAddress derives the task's ledger address from its identity triple.
// The nonce gives owners multiple tasks over the same model reference.
func TaskAddress(owner string, modelRef storage.Ref, nonce uint64) ledger.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return ledger.Derive(taskSeed, []byte(owner), []byte(modelRef), buf[:])
}

// Task is the persisted task entity. Terminal tasks are retained for audit,
// never deleted.
type Task struct {
	ID    string    `json:"id"`
	Owner string    `json:"owner"`
	Nonce uint64    `json:"nonce"`
	State TaskState `json:"state"`

	ModelRef      storage.Ref         `json:"model_ref"`
	DatasetRef    storage.Ref         `json:"dataset_ref,omitempty"`
	ResourceClass staketypes.PoolType `json:"resource_class"`
	CircuitName   string              `json:"circuit_name"`

	Reward   math.Int  `json:"reward"`
	Deadline time.Time `json:"deadline"`

	Claimant       string    `json:"claimant,omitempty"`
	ClaimedAt      time.Time `json:"claimed_at,omitempty"`
	SubmitDeadline time.Time `json:"submit_deadline,omitempty"`

	ResultRef storage.Ref `json:"result_ref,omitempty"`
	ProofID   string      `json:"proof_id,omitempty"`

	// EscrowReclaimed marks an expired task whose escrow reclaim has been
	// committed.
	EscrowReclaimed bool `json:"escrow_reclaimed,omitempty"`

	// RefundDue marks an escrow refund that has been committed but whose
	// credit to the owner's balance has not yet landed.
	RefundDue bool `json:"refund_due,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams carries the caller-supplied fields of a new task.
type CreateParams struct {
	Owner         string              `json:"owner"`
	Nonce         uint64              `json:"nonce"`
	ModelRef      storage.Ref         `json:"model_ref"`
	DatasetRef    storage.Ref         `json:"dataset_ref,omitempty"`
	ResourceClass staketypes.PoolType `json:"resource_class"`
	CircuitName   string              `json:"circuit_name"`
	Reward        math.Int            `json:"reward"`
	Deadline      time.Time           `json:"deadline"`
}

// SettlementOutcome summarizes the economic effects of a proof submission.
type SettlementOutcome struct {
	TaskID   string    `json:"task_id"`
	ProofID  string    `json:"proof_id"`
	Verified bool      `json:"verified"`
	State    TaskState `json:"state"`

	RewardPaid      math.Int `json:"reward_paid"`
	RewardAccrued   math.Int `json:"reward_accrued"`
	RewardForfeited math.Int `json:"reward_forfeited"`
	StakeSlashed    math.Int `json:"stake_slashed"`
}
