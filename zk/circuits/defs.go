// Package circuits holds the ZK-SNARK circuit definitions for task
// verification, together with their input schemas and witness binders.
package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
)

// Canonical circuit names.
const (
	TrainingCircuitName  = "training-v1"
	InferenceCircuitName = "inference-v1"
	PreimageCircuitName  = "preimage-v1"
)

// Def is a static circuit definition: constructor, declared input schema and
// the binder that turns validated inputs into a witness assignment. Public
// signals follow the struct declaration order of the public fields.
type Def struct {
	Name         string
	Description  string
	PublicInputs int
	Schema       Schema
	New          func() frontend.Circuit
	Bind         func(inputs map[string]any) (frontend.Circuit, error)
}

// Builtin returns the circuit definitions compiled into this binary.
func Builtin() []Def {
	return []Def{trainingDef(), inferenceDef(), preimageDef()}
}

// ByName returns the builtin definition for name.
func ByName(name string) (Def, bool) {
	for _, def := range Builtin() {
		if def.Name == name {
			return def, true
		}
	}
	return Def{}, false
}

func trainingDef() Def {
	return Def{
		Name:         TrainingCircuitName,
		Description:  "Training pass verification - proves a training result over a committed model",
		PublicInputs: 3,
		Schema: Schema{
			"task_id":           {Kind: KindUint, Public: true},
			"model_commitment":  {Kind: KindScalar, Public: true},
			"result_commitment": {Kind: KindScalar, Public: true},
			"weight_chunks":     {Kind: KindScalarList, Len: TrainingWeightChunks},
			"gradient_chunks":   {Kind: KindScalarList, Len: TrainingGradientChunks},
			"epochs":            {Kind: KindUint},
			"salt":              {Kind: KindScalar},
		},
		New: func() frontend.Circuit { return &TrainingCircuit{} },
		Bind: func(inputs map[string]any) (frontend.Circuit, error) {
			taskID, err := ToUint64(inputs["task_id"])
			if err != nil {
				return nil, fmt.Errorf("task_id: %w", err)
			}
			modelC, err := ToScalar(inputs["model_commitment"])
			if err != nil {
				return nil, fmt.Errorf("model_commitment: %w", err)
			}
			resultC, err := ToScalar(inputs["result_commitment"])
			if err != nil {
				return nil, fmt.Errorf("result_commitment: %w", err)
			}
			weights, err := ToScalarList(inputs["weight_chunks"], TrainingWeightChunks)
			if err != nil {
				return nil, fmt.Errorf("weight_chunks: %w", err)
			}
			gradients, err := ToScalarList(inputs["gradient_chunks"], TrainingGradientChunks)
			if err != nil {
				return nil, fmt.Errorf("gradient_chunks: %w", err)
			}
			epochs, err := ToUint64(inputs["epochs"])
			if err != nil {
				return nil, fmt.Errorf("epochs: %w", err)
			}
			salt, err := ToScalar(inputs["salt"])
			if err != nil {
				return nil, fmt.Errorf("salt: %w", err)
			}

			assignment := &TrainingCircuit{
				TaskID:           taskID,
				ModelCommitment:  modelC,
				ResultCommitment: resultC,
				Epochs:           epochs,
				Salt:             salt,
			}
			for i, w := range weights {
				assignment.WeightChunks[i] = w
			}
			for i, g := range gradients {
				assignment.GradientChunks[i] = g
			}
			return assignment, nil
		},
	}
}

func preimageDef() Def {
	return Def{
		Name:         PreimageCircuitName,
		Description:  "Result preimage attestation - proves knowledge of the bytes behind a result commitment",
		PublicInputs: 2,
		Schema: Schema{
			"task_id":           {Kind: KindUint, Public: true},
			"result_commitment": {Kind: KindScalar, Public: true},
			"preimage":          {Kind: KindScalar},
		},
		New: func() frontend.Circuit { return &PreimageCircuit{} },
		Bind: func(inputs map[string]any) (frontend.Circuit, error) {
			taskID, err := ToUint64(inputs["task_id"])
			if err != nil {
				return nil, fmt.Errorf("task_id: %w", err)
			}
			resultC, err := ToScalar(inputs["result_commitment"])
			if err != nil {
				return nil, fmt.Errorf("result_commitment: %w", err)
			}
			preimage, err := ToScalar(inputs["preimage"])
			if err != nil {
				return nil, fmt.Errorf("preimage: %w", err)
			}
			return &PreimageCircuit{
				TaskID:           taskID,
				ResultCommitment: resultC,
				Preimage:         preimage,
			}, nil
		},
	}
}

func inferenceDef() Def {
	return Def{
		Name:         InferenceCircuitName,
		Description:  "Inference verification - proves a committed output of a committed model on a committed input",
		PublicInputs: 4,
		Schema: Schema{
			"task_id":           {Kind: KindUint, Public: true},
			"model_commitment":  {Kind: KindScalar, Public: true},
			"input_commitment":  {Kind: KindScalar, Public: true},
			"output_commitment": {Kind: KindScalar, Public: true},
			"weight_chunks":     {Kind: KindScalarList, Len: InferenceWeightChunks},
			"input_chunks":      {Kind: KindScalarList, Len: InferenceInputChunks},
			"output_chunks":     {Kind: KindScalarList, Len: InferenceOutputChunks},
			"salt":              {Kind: KindScalar},
		},
		New: func() frontend.Circuit { return &InferenceCircuit{} },
		Bind: func(inputs map[string]any) (frontend.Circuit, error) {
			taskID, err := ToUint64(inputs["task_id"])
			if err != nil {
				return nil, fmt.Errorf("task_id: %w", err)
			}
			modelC, err := ToScalar(inputs["model_commitment"])
			if err != nil {
				return nil, fmt.Errorf("model_commitment: %w", err)
			}
			inputC, err := ToScalar(inputs["input_commitment"])
			if err != nil {
				return nil, fmt.Errorf("input_commitment: %w", err)
			}
			outputC, err := ToScalar(inputs["output_commitment"])
			if err != nil {
				return nil, fmt.Errorf("output_commitment: %w", err)
			}
			weights, err := ToScalarList(inputs["weight_chunks"], InferenceWeightChunks)
			if err != nil {
				return nil, fmt.Errorf("weight_chunks: %w", err)
			}
			inChunks, err := ToScalarList(inputs["input_chunks"], InferenceInputChunks)
			if err != nil {
				return nil, fmt.Errorf("input_chunks: %w", err)
			}
			outChunks, err := ToScalarList(inputs["output_chunks"], InferenceOutputChunks)
			if err != nil {
				return nil, fmt.Errorf("output_chunks: %w", err)
			}
			salt, err := ToScalar(inputs["salt"])
			if err != nil {
				return nil, fmt.Errorf("salt: %w", err)
			}

			assignment := &InferenceCircuit{
				TaskID:           taskID,
				ModelCommitment:  modelC,
				InputCommitment:  inputC,
				OutputCommitment: outputC,
				Salt:             salt,
			}
			for i, w := range weights {
				assignment.WeightChunks[i] = w
			}
			for i, in := range inChunks {
				assignment.InputChunks[i] = in
			}
			for i, out := range outChunks {
				assignment.OutputChunks[i] = out
			}
			return assignment, nil
		},
	}
}
