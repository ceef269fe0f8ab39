package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Training weight/gradient chunking. Each chunk is one field element, so a
// model snapshot is committed as 16 chunks of up to 31 bytes each.
const (
	TrainingWeightChunks   = 16
	TrainingGradientChunks = 16
)

// TrainingCircuit proves that a provider ran a training pass over the
// committed model without revealing weights or gradients.
//
// Statement: "I know weights W and gradients G such that
// ModelCommitment = MiMC(W, Salt) and ResultCommitment = MiMC(G, Epochs, TaskID),
// with Epochs >= 1."
type TrainingCircuit struct {
	// Public inputs (visible on-chain)
	TaskID           frontend.Variable `gnark:",public"` // Task identifier bound into the result
	ModelCommitment  frontend.Variable `gnark:",public"` // MiMC commitment to the model weights
	ResultCommitment frontend.Variable `gnark:",public"` // MiMC commitment to the training result

	// Private inputs (witness data, kept secret)
	WeightChunks   [TrainingWeightChunks]frontend.Variable   `gnark:",secret"` // Model weight chunks
	GradientChunks [TrainingGradientChunks]frontend.Variable `gnark:",secret"` // Gradient update chunks
	Epochs         frontend.Variable                         `gnark:",secret"` // Completed training epochs
	Salt           frontend.Variable                         `gnark:",secret"` // Blinding for the model commitment
}

// Define implements the gnark Circuit interface.
func (circuit *TrainingCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return fmt.Errorf("failed to initialize MiMC hasher: %w", err)
	}

	// Model commitment: MiMC(WeightChunks..., Salt)
	hasher.Reset()
	for i := 0; i < TrainingWeightChunks; i++ {
		hasher.Write(circuit.WeightChunks[i])
	}
	hasher.Write(circuit.Salt)
	api.AssertIsEqual(hasher.Sum(), circuit.ModelCommitment)

	// Result commitment: MiMC(GradientChunks..., Epochs, TaskID)
	// Binding TaskID into the hash prevents replaying a result against
	// another task.
	hasher.Reset()
	for i := 0; i < TrainingGradientChunks; i++ {
		hasher.Write(circuit.GradientChunks[i])
	}
	hasher.Write(circuit.Epochs)
	hasher.Write(circuit.TaskID)
	api.AssertIsEqual(hasher.Sum(), circuit.ResultCommitment)

	// At least one epoch must have been completed.
	api.AssertIsLessOrEqual(1, circuit.Epochs)

	return nil
}
