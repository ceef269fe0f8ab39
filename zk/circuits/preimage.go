package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// PreimageCircuit proves knowledge of the preimage behind a result
// commitment. It is the cheapest circuit in the set and backs result-hash
// attestations for tasks that do not need full training/inference proofs.
type PreimageCircuit struct {
	TaskID           frontend.Variable `gnark:",public"`
	ResultCommitment frontend.Variable `gnark:",public"`

	Preimage frontend.Variable `gnark:",secret"`
}

// Define implements the gnark Circuit interface.
func (circuit *PreimageCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return fmt.Errorf("failed to initialize MiMC hasher: %w", err)
	}

	hasher.Write(circuit.Preimage)
	hasher.Write(circuit.TaskID)
	api.AssertIsEqual(hasher.Sum(), circuit.ResultCommitment)

	return nil
}
