package api

import (
	"encoding/base64"
	"net/http"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/gin-gonic/gin"

	"github.com/haunti-network/haunti/orchestrator"
	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/engine"
	"github.com/haunti-network/haunti/zk/registry"

	staketypes "github.com/haunti-network/haunti/x/stake/types"
	tasktypes "github.com/haunti-network/haunti/x/task/types"
)

type createTaskRequest struct {
	Owner         string `json:"owner" binding:"required"`
	Nonce         uint64 `json:"nonce"`
	ModelRef      string `json:"model_ref" binding:"required"`
	DatasetRef    string `json:"dataset_ref"`
	ResourceClass string `json:"resource_class" binding:"required"`
	CircuitName   string `json:"circuit_name" binding:"required"`
	Reward        string `json:"reward" binding:"required"`
	Deadline      string `json:"deadline" binding:"required"`
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reward, ok := math.NewIntFromString(req.Reward)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable reward"})
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadline must be RFC3339"})
		return
	}

	id, err := s.orch.CreateTask(c.Request.Context(), tasktypes.CreateParams{
		Owner:         req.Owner,
		Nonce:         req.Nonce,
		ModelRef:      storage.Ref(req.ModelRef),
		DatasetRef:    storage.Ref(req.DatasetRef),
		ResourceClass: staketypes.PoolType(req.ResourceClass),
		CircuitName:   req.CircuitName,
		Reward:        reward,
		Deadline:      deadline,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task_id": id})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.orch.GetTaskStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type claimRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (s *Server) claimTask(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.ClaimTask(c.Request.Context(), req.Provider, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

type submitProofRequest struct {
	Claimant  string `json:"claimant" binding:"required"`
	Proof     string `json:"proof" binding:"required"` // base64 compact wire form
	ResultRef string `json:"result_ref"`
}

func (s *Server) submitProof(c *gin.Context) {
	var req submitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof must be base64"})
		return
	}
	var proof engine.Proof
	if err := proof.UnmarshalBinary(raw); err != nil {
		s.fail(c, err)
		return
	}

	outcome, err := s.orch.SubmitProof(c.Request.Context(), req.Claimant, c.Param("id"), &proof, storage.Ref(req.ResultRef))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type ownerRequest struct {
	Owner string `json:"owner" binding:"required"`
}

func (s *Server) cancelTask(c *gin.Context) {
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.CancelTask(c.Request.Context(), req.Owner, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) reclaimExpired(c *gin.Context) {
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := s.orch.ReclaimExpired(c.Request.Context(), req.Owner, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reclaimed": amount.String()})
}

type stakeRequest struct {
	Staker        string `json:"staker" binding:"required"`
	Pool          string `json:"pool" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	LockupSeconds int64  `json:"lockup_seconds"`
}

func (s *Server) stake(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := math.NewIntFromString(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable amount"})
		return
	}
	lockup := time.Duration(req.LockupSeconds) * time.Second
	if err := s.orch.Stake(c.Request.Context(), req.Staker, staketypes.PoolType(req.Pool), amount, lockup); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "staked"})
}

func (s *Server) unstake(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := math.NewIntFromString(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable amount"})
		return
	}
	if err := s.orch.Unstake(c.Request.Context(), req.Staker, staketypes.PoolType(req.Pool), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unstaked"})
}

type claimRewardsRequest struct {
	Staker string `json:"staker" binding:"required"`
	Pool   string `json:"pool" binding:"required"`
}

func (s *Server) claimRewards(c *gin.Context) {
	var req claimRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claimed, err := s.orch.ClaimRewards(c.Request.Context(), req.Staker, staketypes.PoolType(req.Pool))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": claimed.String()})
}

func (s *Server) getAPY(c *gin.Context) {
	rate, err := s.orch.GetAPY(c.Request.Context(), staketypes.PoolType(c.Param("pool")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": c.Param("pool"), "apy": rate.String()})
}

func (s *Server) getBalance(c *gin.Context) {
	balance, err := s.bank.BalanceOf(c.Request.Context(), c.Param("participant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": c.Param("participant"), "balance": balance.String()})
}

func (s *Server) listCircuits(c *gin.Context) {
	names := s.registry.Names()
	circuits := make([]gin.H, 0, len(names))
	for _, name := range names {
		cfg, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		circuits = append(circuits, gin.H{
			"name":          cfg.Name,
			"description":   cfg.Description,
			"public_inputs": cfg.PublicInputs,
			"ready":         cfg.ProgramRef != "" && cfg.ProvingKeyRef != "" && cfg.VerifyingKeyRef != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"circuits": circuits})
}

// fail maps sentinel error classes to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case sdkerrors.IsOf(err, tasktypes.ErrTaskNotFound, staketypes.ErrPositionNotFound, storage.ErrNotFound, ledger.ErrNotFound):
		status = http.StatusNotFound
	case sdkerrors.IsOf(err, tasktypes.ErrNotOwner, tasktypes.ErrNotClaimant):
		status = http.StatusForbidden
	case sdkerrors.IsOf(err, tasktypes.ErrStateConflict, tasktypes.ErrInvalidTransition, tasktypes.ErrTaskExpired, tasktypes.ErrEscrowReclaimed):
		status = http.StatusConflict
	case sdkerrors.IsOf(err,
		tasktypes.ErrInsufficientStake, staketypes.ErrInsufficientStake, staketypes.ErrBelowMinimumStake,
		staketypes.ErrLockActive, ledger.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case sdkerrors.IsOf(err,
		tasktypes.ErrInvalidTask, tasktypes.ErrCircuitMismatch,
		engine.ErrMalformedProof, engine.ErrInputSchemaViolation,
		staketypes.ErrInvalidPool, staketypes.ErrInvalidAmount, staketypes.ErrInvalidFraction,
		registry.ErrCircuitNotConfigured):
		status = http.StatusBadRequest
	case orchestrator.IsTransient(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
