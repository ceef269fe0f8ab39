package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

const (
	InferenceWeightChunks = 16
	InferenceInputChunks  = 8
	InferenceOutputChunks = 8
)

// InferenceCircuit proves that a provider evaluated the committed model on
// the committed input, producing the committed output, without revealing
// weights, input or output.
type InferenceCircuit struct {
	// Public inputs (visible on-chain)
	TaskID           frontend.Variable `gnark:",public"`
	ModelCommitment  frontend.Variable `gnark:",public"`
	InputCommitment  frontend.Variable `gnark:",public"`
	OutputCommitment frontend.Variable `gnark:",public"`

	// Private inputs (witness data, kept secret)
	WeightChunks [InferenceWeightChunks]frontend.Variable `gnark:",secret"`
	InputChunks  [InferenceInputChunks]frontend.Variable  `gnark:",secret"`
	OutputChunks [InferenceOutputChunks]frontend.Variable `gnark:",secret"`
	Salt         frontend.Variable                        `gnark:",secret"`
}

// Define implements the gnark Circuit interface.
func (circuit *InferenceCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return fmt.Errorf("failed to initialize MiMC hasher: %w", err)
	}

	// Model commitment: MiMC(WeightChunks..., Salt)
	hasher.Reset()
	for i := 0; i < InferenceWeightChunks; i++ {
		hasher.Write(circuit.WeightChunks[i])
	}
	hasher.Write(circuit.Salt)
	api.AssertIsEqual(hasher.Sum(), circuit.ModelCommitment)

	// Input commitment: MiMC(InputChunks..., TaskID)
	hasher.Reset()
	for i := 0; i < InferenceInputChunks; i++ {
		hasher.Write(circuit.InputChunks[i])
	}
	hasher.Write(circuit.TaskID)
	api.AssertIsEqual(hasher.Sum(), circuit.InputCommitment)

	// Output commitment: MiMC(OutputChunks..., TaskID)
	// Binding TaskID into both the input and output hashes prevents
	// replaying a result against another task.
	hasher.Reset()
	for i := 0; i < InferenceOutputChunks; i++ {
		hasher.Write(circuit.OutputChunks[i])
	}
	hasher.Write(circuit.TaskID)
	api.AssertIsEqual(hasher.Sum(), circuit.OutputCommitment)

	return nil
}
