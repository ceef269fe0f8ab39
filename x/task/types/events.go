package types

// Task event types and attribute keys

const (
	EventTypeTaskCreated    = "task_created"
	EventTypeTaskClaimed    = "task_claimed"
	EventTypeProofSubmitted = "proof_submitted"
	EventTypeTaskCompleted  = "task_completed"
	EventTypeTaskFailed     = "task_failed"
	EventTypeTaskCancelled  = "task_cancelled"
	EventTypeTaskExpired    = "task_expired"
)

const (
	AttributeKeyTaskID    = "task_id"
	AttributeKeyOwner     = "owner"
	AttributeKeyClaimant  = "claimant"
	AttributeKeyCircuit   = "circuit"
	AttributeKeyReward    = "reward"
	AttributeKeyProofID   = "proof_id"
	AttributeKeyResultRef = "result_ref"
	AttributeKeyReason    = "reason"
	AttributeKeyDeadline  = "deadline"
)
