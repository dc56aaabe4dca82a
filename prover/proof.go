package prover

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

// ParseProof reads a serialized proof into field elements. Accepted shapes are a JSON
// array of felts, a JSON object carrying that array under "proof" or
// "serialized_proof", or whitespace separated felts.
func ParseProof(proof string) ([]types.Felt, error) {
	proof = strings.TrimSpace(proof)
	var felts []types.Felt
	switch {
	case proof == "":
		return nil, sayaerrors.ErrPEmptyProof
	case proof[0] == '[':
		if err := json.Unmarshal([]byte(proof), &felts); err != nil {
			return nil, fmt.Errorf("%w: %w", sayaerrors.ErrPMalformedProof, err)
		}
	case proof[0] == '{':
		var doc struct {
			Proof           []types.Felt `json:"proof"`
			SerializedProof []types.Felt `json:"serialized_proof"`
		}
		if err := json.Unmarshal([]byte(proof), &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", sayaerrors.ErrPMalformedProof, err)
		}
		felts = doc.SerializedProof
		if len(felts) == 0 {
			felts = doc.Proof
		}
	default:
		for _, field := range strings.Fields(proof) {
			f, err := types.FeltFromString(field)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", sayaerrors.ErrPMalformedProof, err)
			}
			felts = append(felts, f)
		}
	}
	if len(felts) == 0 {
		return nil, sayaerrors.ErrPEmptyProof
	}
	return felts, nil
}

// ProgramOutput is the public output a proof commits to, needed to apply the proven
// state diff on the world contract.
type ProgramOutput struct {
	Output      []types.Felt `json:"program_output"`
	ProgramHash types.Felt   `json:"program_hash"`
}

// ExtractOutput reads the program output and program hash from a JSON object proof.
func ExtractOutput(proof string) (*ProgramOutput, error) {
	var out ProgramOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(proof)), &out); err != nil {
		return nil, fmt.Errorf("%w: %w", sayaerrors.ErrPMalformedProof, err)
	}
	if len(out.Output) == 0 {
		return nil, fmt.Errorf("%w: no program_output", sayaerrors.ErrPMalformedProof)
	}
	return &out, nil
}
